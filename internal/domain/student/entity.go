package student

import (
	"errors"
	"net/mail"
	"regexp"
	"strings"
	"time"
	"unicode"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Handle is the student's Codeforces handle.
type Handle string

var handlePattern = regexp.MustCompile(`^[A-Za-z0-9_.\-]{3,24}$`)

// IsValid checks the handle against Codeforces naming rules.
func (h Handle) IsValid() bool {
	return handlePattern.MatchString(string(h))
}

// String returns the handle as a string.
func (h Handle) String() string {
	return string(h)
}

// Contact holds the channels a student can be reached on.
type Contact struct {
	// Email is the primary notification address. Unique across students.
	Email string

	// Phone is informational only.
	Phone string

	// TelegramChatID enables the Telegram channel when non-zero.
	TelegramChatID int64
}

var phonePattern = regexp.MustCompile(`^\+?[\d\s\-()]{10,15}$`)

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// Student is a tracked individual whose Codeforces activity is synced.
type Student struct {
	// ID - internal identifier (UUID string).
	ID string

	// Handle - Codeforces handle, unique.
	Handle Handle

	// Name - display name.
	Name string

	// Contact - notification channels.
	Contact Contact

	// CurrentRating - rating reported by the last successful profile fetch.
	CurrentRating int

	// MaxRating - best rating ever reported.
	MaxRating int

	// LastSyncedAt - time of the last completed sync, nil if never synced.
	LastSyncedAt *time.Time

	// NotificationsEnabled - whether inactivity reminders may be sent.
	NotificationsEnabled bool

	// NotificationsSent - number of reminders delivered so far.
	NotificationsSent int

	// CreatedAt - registration time.
	CreatedAt time.Time

	// UpdatedAt - last modification time.
	UpdatedAt time.Time
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidHandle - handle does not look like a Codeforces handle.
	ErrInvalidHandle = errors.New("invalid handle: must be 3-24 chars of letters, digits, '_', '.', '-'")

	// ErrInvalidName - name is empty, too long or contains non-letters.
	ErrInvalidName = errors.New("invalid name: must be 2-50 letters and spaces")

	// ErrInvalidEmail - email cannot be parsed.
	ErrInvalidEmail = errors.New("invalid email address")

	// ErrInvalidPhone - phone does not match the accepted format.
	ErrInvalidPhone = errors.New("invalid phone: must be 10-15 digits")
)

// ══════════════════════════════════════════════════════════════════════════════
// FACTORY & VALIDATION
// ══════════════════════════════════════════════════════════════════════════════

// NewStudentParams contains the parameters for registering a student.
type NewStudentParams struct {
	ID             string
	Name           string
	Email          string
	Phone          string
	Handle         Handle
	TelegramChatID int64
	Now            time.Time
}

// NewStudent creates a new student, validating every field.
func NewStudent(params NewStudentParams) (*Student, error) {
	if params.ID == "" {
		return nil, errors.New("student id is required")
	}

	name, err := normalizeName(params.Name)
	if err != nil {
		return nil, err
	}

	email, err := normalizeEmail(params.Email)
	if err != nil {
		return nil, err
	}

	phone, err := normalizePhone(params.Phone)
	if err != nil {
		return nil, err
	}

	handle := Handle(strings.TrimSpace(string(params.Handle)))
	if !handle.IsValid() {
		return nil, ErrInvalidHandle
	}

	now := params.Now.UTC()
	if params.Now.IsZero() {
		now = time.Now().UTC()
	}

	return &Student{
		ID:     params.ID,
		Handle: handle,
		Name:   name,
		Contact: Contact{
			Email:          email,
			Phone:          phone,
			TelegramChatID: params.TelegramChatID,
		},
		NotificationsEnabled: true,
		CreatedAt:            now,
		UpdatedAt:            now,
	}, nil
}

// UpdateParams carries a partial update. Nil fields are left unchanged.
type UpdateParams struct {
	Name           *string
	Email          *string
	Phone          *string
	Handle         *Handle
	TelegramChatID *int64
}

// Apply validates and applies a partial update. It reports whether the
// handle changed, in which case the stored activity belongs to the old
// handle and the caller should re-sync.
func (s *Student) Apply(p UpdateParams, now time.Time) (handleChanged bool, err error) {
	next := *s

	if p.Name != nil {
		if next.Name, err = normalizeName(*p.Name); err != nil {
			return false, err
		}
	}
	if p.Email != nil {
		if next.Contact.Email, err = normalizeEmail(*p.Email); err != nil {
			return false, err
		}
	}
	if p.Phone != nil {
		if next.Contact.Phone, err = normalizePhone(*p.Phone); err != nil {
			return false, err
		}
	}
	if p.TelegramChatID != nil {
		next.Contact.TelegramChatID = *p.TelegramChatID
	}
	if p.Handle != nil {
		h := Handle(strings.TrimSpace(string(*p.Handle)))
		if !h.IsValid() {
			return false, ErrInvalidHandle
		}
		handleChanged = !strings.EqualFold(string(h), string(s.Handle))
		next.Handle = h
	}

	next.UpdatedAt = now.UTC()
	*s = next
	return handleChanged, nil
}

func normalizeName(raw string) (string, error) {
	name := strings.Join(strings.Fields(raw), " ")
	n := len([]rune(name))
	if n < 2 || n > 50 {
		return "", ErrInvalidName
	}
	for _, r := range name {
		if !unicode.IsLetter(r) && r != ' ' {
			return "", ErrInvalidName
		}
	}
	return name, nil
}

func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}

func normalizePhone(raw string) (string, error) {
	phone := strings.TrimSpace(raw)
	if phone == "" {
		return "", nil
	}
	if !phonePattern.MatchString(phone) {
		return "", ErrInvalidPhone
	}
	return phone, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN METHODS
// ══════════════════════════════════════════════════════════════════════════════

// ApplyRatings stores the ratings reported by a profile fetch.
func (s *Student) ApplyRatings(current, maxRating int) {
	s.CurrentRating = current
	s.MaxRating = maxRating
}

// MarkSynced records the completion of a sync.
func (s *Student) MarkSynced(at time.Time) {
	t := at.UTC()
	s.LastSyncedAt = &t
	s.UpdatedAt = t
}

// SetNotifications enables or disables inactivity reminders.
func (s *Student) SetNotifications(enabled bool, now time.Time) {
	s.NotificationsEnabled = enabled
	s.UpdatedAt = now.UTC()
}

// HasEmail reports whether the email channel can reach the student.
func (s *Student) HasEmail() bool {
	return s.Contact.Email != ""
}

// HasTelegram reports whether the Telegram channel can reach the student.
func (s *Student) HasTelegram() bool {
	return s.Contact.TelegramChatID != 0
}
