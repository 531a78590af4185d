package postgres

// ══════════════════════════════════════════════════════════════════════════════
// EMBEDDED MIGRATIONS
// ══════════════════════════════════════════════════════════════════════════════

// GetMigrations returns all embedded migrations in version order.
func GetMigrations() []Migration {
	return []Migration{
		{
			Version: 1,
			Name:    "create_students",
			UpSQL:   migration001Up,
			DownSQL: migration001Down,
		},
		{
			Version: 2,
			Name:    "create_activity",
			UpSQL:   migration002Up,
			DownSQL: migration002Down,
		},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
CREATE TABLE IF NOT EXISTS students (
    id UUID PRIMARY KEY,
    handle VARCHAR(24) NOT NULL,
    name VARCHAR(100) NOT NULL,
    email VARCHAR(254) NOT NULL,
    phone VARCHAR(32) NOT NULL DEFAULT '',
    telegram_chat_id BIGINT NOT NULL DEFAULT 0,
    current_rating INTEGER NOT NULL DEFAULT 0,
    max_rating INTEGER NOT NULL DEFAULT 0,
    last_synced_at TIMESTAMP WITH TIME ZONE,
    notifications_enabled BOOLEAN NOT NULL DEFAULT TRUE,
    notifications_sent INTEGER NOT NULL DEFAULT 0,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_notifications_sent CHECK (notifications_sent >= 0)
);

-- Handles and emails are unique regardless of case.
CREATE UNIQUE INDEX IF NOT EXISTS students_handle_key ON students (LOWER(handle));
CREATE UNIQUE INDEX IF NOT EXISTS students_email_key ON students (LOWER(email));

CREATE INDEX IF NOT EXISTS idx_students_created_at ON students (created_at DESC);
CREATE INDEX IF NOT EXISTS idx_students_current_rating ON students (current_rating DESC);
`

const migration001Down = `
DROP TABLE IF EXISTS students;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE ACTIVITY
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS submissions (
    student_id UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    external_id BIGINT NOT NULL,
    contest_id INTEGER NOT NULL DEFAULT 0,
    problem_contest_id INTEGER NOT NULL DEFAULT 0,
    problem_index VARCHAR(10) NOT NULL DEFAULT '',
    problem_name TEXT NOT NULL,
    problem_rating INTEGER NOT NULL DEFAULT 0,
    tags TEXT[] NOT NULL DEFAULT '{}',
    verdict VARCHAR(40) NOT NULL DEFAULT '',
    language VARCHAR(100) NOT NULL DEFAULT '',
    submitted_at TIMESTAMP WITH TIME ZONE NOT NULL,

    PRIMARY KEY (student_id, external_id)
);

CREATE INDEX IF NOT EXISTS idx_submissions_student_time ON submissions (student_id, submitted_at DESC);

CREATE TABLE IF NOT EXISTS contest_participations (
    student_id UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    contest_id INTEGER NOT NULL,
    contest_name TEXT NOT NULL,
    rank INTEGER NOT NULL DEFAULT 0,
    old_rating INTEGER NOT NULL DEFAULT 0,
    new_rating INTEGER NOT NULL DEFAULT 0,
    rating_change INTEGER NOT NULL DEFAULT 0,
    occurred_at TIMESTAMP WITH TIME ZONE NOT NULL,

    PRIMARY KEY (student_id, contest_id)
);

CREATE INDEX IF NOT EXISTS idx_contests_student_time ON contest_participations (student_id, occurred_at DESC);
`

const migration002Down = `
DROP TABLE IF EXISTS contest_participations;
DROP TABLE IF EXISTS submissions;
`
