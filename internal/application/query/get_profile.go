package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/alem-hub/cf-progress-hub/internal/domain/activity"
	"github.com/alem-hub/cf-progress-hub/internal/domain/analytics"
	"github.com/alem-hub/cf-progress-hub/internal/domain/student"
	"github.com/alem-hub/cf-progress-hub/internal/infrastructure/metrics"
	"github.com/alem-hub/cf-progress-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROFILE QUERY
// Builds the profile view of a student from stored submissions and contests
// filtered by two independent trailing windows.
// ══════════════════════════════════════════════════════════════════════════════

// ErrCacheMiss is returned by a ProfileCache when the key is absent.
var ErrCacheMiss = errors.New("profile cache: miss")

// ProfileCache stores rendered profile views.
type ProfileCache interface {
	// GetProfile returns the cached bytes or ErrCacheMiss.
	GetProfile(ctx context.Context, key string) ([]byte, error)

	// SetProfile stores the bytes under key.
	SetProfile(ctx context.Context, key string, data []byte) error
}

// ProfileCacheKey is the cache key of one window combination.
func ProfileCacheKey(studentID string, contestWindow, problemWindow activity.Window) string {
	return "profile:" + studentID + ":" + strconv.Itoa(int(contestWindow)) + ":" + strconv.Itoa(int(problemWindow))
}

// GetProfileQuery contains the query parameters.
type GetProfileQuery struct {
	StudentID string

	// ContestWindowDays - -1 for all time, otherwise N >= 0 days.
	ContestWindowDays int

	// ProblemWindowDays - -1 for all time, otherwise N >= 0 days.
	ProblemWindowDays int
}

// ProblemRef points at the hardest solved problem.
type ProblemRef struct {
	ContestID int    `json:"contest_id"`
	Index     string `json:"index"`
	Name      string `json:"name"`
	Rating    int    `json:"rating"`
}

// HistogramBucketDTO is one difficulty bucket.
type HistogramBucketDTO struct {
	Rating int `json:"rating"`
	Count  int `json:"count"`
}

// StatisticsDTO contains the derived numbers.
type StatisticsDTO struct {
	SolvedCount         int                  `json:"solved_count"`
	AverageDifficulty   int                  `json:"average_difficulty"`
	AveragePerDay       float64              `json:"average_per_day"`
	Hardest             *ProblemRef          `json:"hardest"`
	// DifficultyHistogram counts distinct solved problems per 100-point bucket.
	DifficultyHistogram []HistogramBucketDTO `json:"difficulty_histogram"`
	ActivityCalendar    map[string]int       `json:"activity_calendar"`
}

// ProfileView is the complete profile response.
type ProfileView struct {
	Student           StudentDTO      `json:"student"`
	ContestWindowDays int             `json:"contest_window_days"`
	ProblemWindowDays int             `json:"problem_window_days"`
	Statistics        StatisticsDTO   `json:"statistics"`
	Contests          []ContestDTO    `json:"contests"`
	RecentSubmissions []SubmissionDTO `json:"recent_submissions"`
}

// GetProfileHandler handles GetProfileQuery.
type GetProfileHandler struct {
	studentRepo    student.Repository
	submissionRepo activity.SubmissionRepository
	contestRepo    activity.ContestRepository

	cache   ProfileCache
	clock   timeutil.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewGetProfileHandler creates a new GetProfileHandler. cache may be nil.
func NewGetProfileHandler(
	studentRepo student.Repository,
	submissionRepo activity.SubmissionRepository,
	contestRepo activity.ContestRepository,
	cache ProfileCache,
	clock timeutil.Clock,
	logger *slog.Logger,
	m *metrics.Metrics,
) *GetProfileHandler {
	if clock == nil {
		clock = timeutil.SystemClock
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GetProfileHandler{
		studentRepo:    studentRepo,
		submissionRepo: submissionRepo,
		contestRepo:    contestRepo,
		cache:          cache,
		clock:          clock,
		logger:         logger,
		metrics:        m,
	}
}

// Handle executes the query.
func (h *GetProfileHandler) Handle(ctx context.Context, q GetProfileQuery) (*ProfileView, error) {
	contestWindow, err := activity.NewWindow(q.ContestWindowDays)
	if err != nil {
		return nil, err
	}
	problemWindow, err := activity.NewWindow(q.ProblemWindowDays)
	if err != nil {
		return nil, err
	}

	key := ProfileCacheKey(q.StudentID, contestWindow, problemWindow)
	if view := h.fromCache(ctx, key); view != nil {
		return view, nil
	}

	s, err := h.studentRepo.GetByID(ctx, q.StudentID)
	if err != nil {
		return nil, fmt.Errorf("get_profile: %w", err)
	}

	now := h.clock()
	subs, err := h.submissionRepo.ListForStudent(ctx, s.ID, problemWindow.Since(now))
	if err != nil {
		return nil, fmt.Errorf("get_profile: submissions: %w", err)
	}
	contests, err := h.contestRepo.ListForStudent(ctx, s.ID, contestWindow.Since(now))
	if err != nil {
		return nil, fmt.Errorf("get_profile: contests: %w", err)
	}

	profile := analytics.ComputeProfile(analytics.Input{
		StudentCreatedAt: s.CreatedAt,
		ProblemWindow:    problemWindow,
		Submissions:      subs,
		Contests:         contests,
		Now:              now,
	})

	view := newProfileView(s, contestWindow, problemWindow, profile)
	h.toCache(ctx, key, view)
	return view, nil
}

func (h *GetProfileHandler) fromCache(ctx context.Context, key string) *ProfileView {
	if h.cache == nil {
		return nil
	}
	data, err := h.cache.GetProfile(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			h.logger.Warn("profile cache read failed", "key", key, "error", err)
		}
		h.metrics.IncProfileCache(metrics.ResultMiss)
		return nil
	}

	var view ProfileView
	if err := json.Unmarshal(data, &view); err != nil {
		h.logger.Warn("discarding undecodable cached profile", "key", key, "error", err)
		h.metrics.IncProfileCache(metrics.ResultMiss)
		return nil
	}
	h.metrics.IncProfileCache(metrics.ResultHit)
	return &view
}

func (h *GetProfileHandler) toCache(ctx context.Context, key string, view *ProfileView) {
	if h.cache == nil {
		return
	}
	data, err := json.Marshal(view)
	if err != nil {
		return
	}
	if err := h.cache.SetProfile(ctx, key, data); err != nil {
		h.logger.Warn("profile cache write failed", "key", key, "error", err)
	}
}

func newProfileView(s *student.Student, cw, pw activity.Window, p analytics.Profile) *ProfileView {
	stats := StatisticsDTO{
		SolvedCount:         p.SolvedCount,
		AverageDifficulty:   p.AverageDifficulty,
		AveragePerDay:       p.AveragePerDay,
		ActivityCalendar:    p.ActivityCalendar,
		DifficultyHistogram: make([]HistogramBucketDTO, 0, len(p.DifficultyHistogram)),
	}
	if p.Hardest != nil {
		stats.Hardest = &ProblemRef{
			ContestID: p.Hardest.Problem.ContestID,
			Index:     p.Hardest.Problem.Index,
			Name:      p.Hardest.Problem.Name,
			Rating:    p.Hardest.Problem.Rating,
		}
	}
	for rating, count := range p.DifficultyHistogram {
		stats.DifficultyHistogram = append(stats.DifficultyHistogram, HistogramBucketDTO{Rating: rating, Count: count})
	}
	sort.Slice(stats.DifficultyHistogram, func(i, j int) bool {
		return stats.DifficultyHistogram[i].Rating < stats.DifficultyHistogram[j].Rating
	})

	view := &ProfileView{
		Student:           NewStudentDTO(s),
		ContestWindowDays: int(cw),
		ProblemWindowDays: int(pw),
		Statistics:        stats,
		Contests:          make([]ContestDTO, 0, len(p.Contests)),
		RecentSubmissions: make([]SubmissionDTO, 0, len(p.RecentSubmissions)),
	}
	for _, c := range p.Contests {
		view.Contests = append(view.Contests, NewContestDTO(c))
	}
	for _, sub := range p.RecentSubmissions {
		view.RecentSubmissions = append(view.RecentSubmissions, NewSubmissionDTO(sub))
	}
	return view
}
