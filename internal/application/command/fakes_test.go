package command

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/alem-hub/cf-progress-hub/internal/domain/activity"
	"github.com/alem-hub/cf-progress-hub/internal/domain/notification"
	"github.com/alem-hub/cf-progress-hub/internal/domain/shared"
	"github.com/alem-hub/cf-progress-hub/internal/domain/student"
	"github.com/alem-hub/cf-progress-hub/internal/infrastructure/persistence/memory"
)

var fixedNow = time.Date(2024, 6, 15, 10, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return fixedNow }

var errUpstream = errors.New("upstream down")

// fakeClient serves canned data per handle; errs override by endpoint.
type fakeClient struct {
	mu sync.Mutex

	profiles    map[string]*UpstreamProfile
	submissions map[string][]activity.Submission
	contests    map[string][]activity.ContestParticipation

	profileErr    error
	submissionErr error
	contestErr    error

	// missing handles answer with a not-found error.
	missing map[string]bool

	// panicOn makes every call for that handle panic.
	panicOn string

	calls int
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		profiles:    map[string]*UpstreamProfile{},
		submissions: map[string][]activity.Submission{},
		contests:    map[string][]activity.ContestParticipation{},
		missing:     map[string]bool{},
	}
}

func (f *fakeClient) enter(handle string) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.panicOn != "" && f.panicOn == handle {
		panic("boom")
	}
}

func (f *fakeClient) FetchProfile(_ context.Context, handle string) (*UpstreamProfile, error) {
	f.enter(handle)
	if f.missing[handle] {
		return nil, shared.ErrNotFound
	}
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	p, ok := f.profiles[handle]
	if !ok {
		return &UpstreamProfile{}, nil
	}
	c := *p
	return &c, nil
}

func (f *fakeClient) FetchSubmissions(_ context.Context, handle string) ([]activity.Submission, error) {
	f.enter(handle)
	if f.submissionErr != nil {
		return nil, f.submissionErr
	}
	return append([]activity.Submission(nil), f.submissions[handle]...), nil
}

func (f *fakeClient) FetchRatingHistory(_ context.Context, handle string) ([]activity.ContestParticipation, error) {
	f.enter(handle)
	if f.contestErr != nil {
		return nil, f.contestErr
	}
	return append([]activity.ContestParticipation(nil), f.contests[handle]...), nil
}

// fakeCache records invalidations.
type fakeCache struct {
	mu          sync.Mutex
	invalidated []string
}

func (c *fakeCache) InvalidateProfile(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, id)
	return nil
}

// fakeNotifier records sends and fails for listed student IDs.
type fakeNotifier struct {
	mu     sync.Mutex
	sent   []string
	kinds  []notification.Kind
	failOn map[string]bool

	// failAll rejects every send.
	failAll bool
}

func (n *fakeNotifier) Send(_ context.Context, kind notification.Kind, s *student.Student) (notification.Receipt, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failAll || n.failOn[s.ID] {
		return notification.Receipt{}, errors.New("smtp refused")
	}
	n.sent = append(n.sent, s.ID)
	n.kinds = append(n.kinds, kind)
	return notification.Receipt{MessageID: "m-" + s.ID, Channel: notification.ChannelLog, SentAt: fixedNow}, nil
}

// fakeInactivity reports the listed students as inactive.
type fakeInactivity struct {
	inactive map[string]bool
	failOn   map[string]bool
}

func (f fakeInactivity) IsInactive(_ context.Context, id string, _ int) (bool, error) {
	if f.failOn[id] {
		return false, errors.New("query failed")
	}
	return f.inactive[id], nil
}

// countingThrottle counts waits.
type countingThrottle struct {
	mu    sync.Mutex
	waits int
}

func (t *countingThrottle) Wait(ctx context.Context) error {
	t.mu.Lock()
	t.waits++
	t.mu.Unlock()
	return ctx.Err()
}

func seedStudent(t *testing.T, store *memory.Store, id, handle string) *student.Student {
	t.Helper()
	s, err := student.NewStudent(student.NewStudentParams{
		ID:     id,
		Name:   "Student Tester",
		Email:  handle + "@example.com",
		Handle: student.Handle(handle),
		Now:    fixedNow.Add(-30 * 24 * time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, store.Students().Create(context.Background(), s))
	return s
}

func sub(id int64, contest int, index, verdict string, rating int, at time.Time) activity.Submission {
	return activity.Submission{
		ExternalID:  id,
		ContestID:   contest,
		Problem:     activity.Problem{ContestID: contest, Index: index, Name: "P" + index, Rating: rating},
		Verdict:     activity.Verdict(verdict),
		Language:    "GNU C++17",
		SubmittedAt: at,
	}
}
