package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/alem-hub/cf-progress-hub/internal/application/command"
	"github.com/alem-hub/cf-progress-hub/internal/application/query"
	"github.com/alem-hub/cf-progress-hub/internal/domain/activity"
	"github.com/alem-hub/cf-progress-hub/internal/domain/notification"
	"github.com/alem-hub/cf-progress-hub/internal/domain/shared"
	"github.com/alem-hub/cf-progress-hub/internal/domain/student"
	"github.com/alem-hub/cf-progress-hub/internal/infrastructure/metrics"
	"github.com/alem-hub/cf-progress-hub/internal/infrastructure/scheduler"
	"github.com/alem-hub/cf-progress-hub/internal/interface/http/handlers"
	"github.com/alem-hub/cf-progress-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// ScheduleController is the runtime view of the scheduler.
type ScheduleController interface {
	Status() scheduler.ScheduleStatus
	Reconfigure(req scheduler.ReconfigureRequest) (scheduler.ScheduleStatus, error)
	TriggerNow(ctx context.Context) (*command.BatchOutcome, error)
}

// StudentSyncer syncs one student.
type StudentSyncer interface {
	Handle(ctx context.Context, cmd command.SyncStudentCommand) (*command.SyncOutcome, error)
}

// ProfileReader builds profile statistics.
type ProfileReader interface {
	Handle(ctx context.Context, q query.GetProfileQuery) (*query.ProfileView, error)
}

// StudentRegistrar registers students.
type StudentRegistrar interface {
	Handle(ctx context.Context, cmd command.RegisterStudentCommand) (*command.RegisterStudentResult, error)
}

// StudentEditor updates and deletes students.
type StudentEditor interface {
	Handle(ctx context.Context, cmd command.UpdateStudentCommand) (*command.UpdateStudentResult, error)
	Delete(ctx context.Context, cmd command.DeleteStudentCommand) error
}

// StudentLister lists and exports students.
type StudentLister interface {
	Handle(ctx context.Context, q query.ListStudentsQuery) (*query.ListStudentsResult, error)
	ExportCSV(ctx context.Context, w io.Writer) error
}

// NotificationSettings changes and exercises notification settings.
type NotificationSettings interface {
	SetEnabled(ctx context.Context, cmd command.SetNotificationsCommand) (*student.Student, error)
	SendTest(ctx context.Context, cmd command.SendTestNotificationCommand) (notification.Receipt, error)
}

// NotificationStats reports notification counters.
type NotificationStats interface {
	ForStudent(ctx context.Context, studentID string) (*query.NotificationStatsDTO, error)
	System(ctx context.Context) (*query.NotificationSystemDTO, error)
}

// Dependencies contains everything the handlers call. A nil dependency
// makes its routes answer 501.
type Dependencies struct {
	Scheduler ScheduleController

	SyncStudent StudentSyncer
	GetProfile  ProfileReader

	RegisterStudent StudentRegistrar
	EditStudent     StudentEditor
	ListStudents    StudentLister

	Notifications     NotificationSettings
	NotificationStats NotificationStats

	HealthChecker handlers.HealthChecker
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR MAPPING
// ══════════════════════════════════════════════════════════════════════════════

// statusFor maps an error kind to its HTTP status and error code.
func statusFor(err error) (int, string) {
	switch {
	case shared.IsNotFound(err):
		return http.StatusNotFound, "not_found"
	case shared.IsAlreadyExists(err):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, shared.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, shared.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case shared.IsValidation(err):
		return http.StatusBadRequest, "invalid_argument"
	case shared.IsExternalService(err):
		return http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "timeout"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError answers with the status of err. Internal errors are logged
// and their text is not exposed.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.FromContext(r.Context()).Error(op+" failed", "error", err)
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "An unexpected error occurred"
	}
	writeJSONError(w, status, code, message)
}

func notConfigured(w http.ResponseWriter, what string) {
	writeJSONError(w, http.StatusNotImplemented, "not_implemented", what+" is not configured")
}

// decodeJSON decodes the request body into v, rejecting unknown fields.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return shared.WrapError("http", "Decode", shared.ErrInvalidFormat, "malformed JSON body", err)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.deps.HealthChecker != nil {
		status := s.deps.HealthChecker.Check(r.Context())
		if !status.Healthy {
			writeJSON(w, http.StatusServiceUnavailable, status)
			return
		}
		writeJSON(w, http.StatusOK, status)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"healthy": true,
		"uptime":  s.Uptime().Round(time.Second).String(),
	})
}

// handleLive handles GET /live.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// SCHEDULE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleScheduleStatus handles GET /api/v1/schedule/status
func (s *Server) handleScheduleStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		notConfigured(w, "scheduler")
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, s.deps.Scheduler.Status(), nil)
}

// handleSchedulePresets handles GET /api/v1/schedule/presets
func (s *Server) handleSchedulePresets(w http.ResponseWriter, r *http.Request) {
	writeJSONWithMeta(w, r, http.StatusOK, scheduler.Presets(), nil)
}

// handleReconfigureSchedule handles PUT /api/v1/schedule
func (s *Server) handleReconfigureSchedule(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		notConfigured(w, "scheduler")
		return
	}
	var req scheduler.ReconfigureRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, "reconfigure schedule", err)
		return
	}
	status, err := s.deps.Scheduler.Reconfigure(req)
	if err != nil {
		s.writeError(w, r, "reconfigure schedule", err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, status, nil)
}

// handleTriggerBatch handles POST /api/v1/schedule/trigger. The batch runs
// inline and the outcome is returned.
func (s *Server) handleTriggerBatch(w http.ResponseWriter, r *http.Request) {
	if s.deps.Scheduler == nil {
		notConfigured(w, "scheduler")
		return
	}
	outcome, err := s.deps.Scheduler.TriggerNow(r.Context())
	if err != nil {
		s.writeError(w, r, "trigger batch", err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, outcome, nil)
}

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleSyncStudent handles POST /api/v1/students/{id}/sync
func (s *Server) handleSyncStudent(w http.ResponseWriter, r *http.Request) {
	if s.deps.SyncStudent == nil {
		notConfigured(w, "sync")
		return
	}
	outcome, err := s.deps.SyncStudent.Handle(r.Context(), command.SyncStudentCommand{StudentID: r.PathValue("id")})
	if err != nil {
		s.writeError(w, r, "sync student", err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, outcome, nil)
}

// handleGetProfile handles GET /api/v1/students/{id}/profile
func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	if s.deps.GetProfile == nil {
		notConfigured(w, "profile")
		return
	}
	contestDays, err := getQueryParamInt(r, "contestDays", int(activity.DefaultWindow))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}
	problemDays, err := getQueryParamInt(r, "problemDays", int(activity.DefaultWindow))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}

	view, err := s.deps.GetProfile.Handle(r.Context(), query.GetProfileQuery{
		StudentID:         r.PathValue("id"),
		ContestWindowDays: contestDays,
		ProblemWindowDays: problemDays,
	})
	if err != nil {
		s.writeError(w, r, "get profile", err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, view, nil)
}

// handleListStudents handles GET /api/v1/students
func (s *Server) handleListStudents(w http.ResponseWriter, r *http.Request) {
	if s.deps.ListStudents == nil {
		notConfigured(w, "student listing")
		return
	}
	offset, err := getQueryParamInt(r, "offset", 0)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}
	limit, err := getQueryParamInt(r, "limit", 0)
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_argument", err.Error())
		return
	}

	result, err := s.deps.ListStudents.Handle(r.Context(), query.ListStudentsQuery{
		Offset:   offset,
		Limit:    limit,
		SortBy:   r.URL.Query().Get("sort"),
		SortDesc: getQueryParamBool(r, "desc"),
	})
	if err != nil {
		s.writeError(w, r, "list students", err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, result.Students, &ResponseMeta{
		TotalCount: result.Total,
		Offset:     offset,
		Limit:      limit,
	})
}

// handleExportStudents handles GET /api/v1/students/export.csv
func (s *Server) handleExportStudents(w http.ResponseWriter, r *http.Request) {
	if s.deps.ListStudents == nil {
		notConfigured(w, "student listing")
		return
	}
	var buf bytes.Buffer
	if err := s.deps.ListStudents.ExportCSV(r.Context(), &buf); err != nil {
		s.writeError(w, r, "export students", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="students.csv"`)
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// handleRegisterStudent handles POST /api/v1/students
func (s *Server) handleRegisterStudent(w http.ResponseWriter, r *http.Request) {
	if s.deps.RegisterStudent == nil {
		notConfigured(w, "registration")
		return
	}
	var cmd command.RegisterStudentCommand
	if err := decodeJSON(r, &cmd); err != nil {
		s.writeError(w, r, "register student", err)
		return
	}
	result, err := s.deps.RegisterStudent.Handle(r.Context(), cmd)
	if err != nil {
		s.writeError(w, r, "register student", err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusCreated, registrationResponse{
		Student:  query.NewStudentDTO(result.Student),
		Sync:     result.Sync,
		Welcomed: result.Welcomed,
	}, nil)
}

type registrationResponse struct {
	Student  query.StudentDTO     `json:"student"`
	Sync     *command.SyncOutcome `json:"sync"`
	Welcomed bool                 `json:"welcomed"`
}

// handleUpdateStudent handles PATCH /api/v1/students/{id}
func (s *Server) handleUpdateStudent(w http.ResponseWriter, r *http.Request) {
	if s.deps.EditStudent == nil {
		notConfigured(w, "student editing")
		return
	}
	var cmd command.UpdateStudentCommand
	if err := decodeJSON(r, &cmd); err != nil {
		s.writeError(w, r, "update student", err)
		return
	}
	cmd.StudentID = r.PathValue("id")

	result, err := s.deps.EditStudent.Handle(r.Context(), cmd)
	if err != nil {
		s.writeError(w, r, "update student", err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, updateResponse{
		Student: query.NewStudentDTO(result.Student),
		Sync:    result.Sync,
	}, nil)
}

type updateResponse struct {
	Student query.StudentDTO     `json:"student"`
	Sync    *command.SyncOutcome `json:"sync,omitempty"`
}

// handleDeleteStudent handles DELETE /api/v1/students/{id}
func (s *Server) handleDeleteStudent(w http.ResponseWriter, r *http.Request) {
	if s.deps.EditStudent == nil {
		notConfigured(w, "student editing")
		return
	}
	if err := s.deps.EditStudent.Delete(r.Context(), command.DeleteStudentCommand{StudentID: r.PathValue("id")}); err != nil {
		s.writeError(w, r, "delete student", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleGetNotifications handles GET /api/v1/students/{id}/notifications
func (s *Server) handleGetNotifications(w http.ResponseWriter, r *http.Request) {
	if s.deps.NotificationStats == nil {
		notConfigured(w, "notifications")
		return
	}
	stats, err := s.deps.NotificationStats.ForStudent(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, "get notifications", err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, stats, nil)
}

type setNotificationsRequest struct {
	Enabled *bool `json:"enabled"`
}

// handleSetNotifications handles PUT /api/v1/students/{id}/notifications
func (s *Server) handleSetNotifications(w http.ResponseWriter, r *http.Request) {
	if s.deps.Notifications == nil {
		notConfigured(w, "notifications")
		return
	}
	var req setNotificationsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, "set notifications", err)
		return
	}
	if req.Enabled == nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_argument", "enabled must be provided")
		return
	}

	st, err := s.deps.Notifications.SetEnabled(r.Context(), command.SetNotificationsCommand{
		StudentID: r.PathValue("id"),
		Enabled:   *req.Enabled,
	})
	if err != nil {
		s.writeError(w, r, "set notifications", err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, query.NewStudentDTO(st), nil)
}

// handleTestNotification handles POST /api/v1/students/{id}/notifications/test
func (s *Server) handleTestNotification(w http.ResponseWriter, r *http.Request) {
	if s.deps.Notifications == nil {
		notConfigured(w, "notifications")
		return
	}
	receipt, err := s.deps.Notifications.SendTest(r.Context(), command.SendTestNotificationCommand{StudentID: r.PathValue("id")})
	if err != nil {
		s.writeError(w, r, "test notification", err)
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, receiptResponse{
		MessageID: receipt.MessageID,
		Channel:   string(receipt.Channel),
		SentAt:    receipt.SentAt,
	}, nil)
}

type receiptResponse struct {
	MessageID string    `json:"message_id"`
	Channel   string    `json:"channel"`
	SentAt    time.Time `json:"sent_at"`
}

// handleNotificationSystem handles GET /api/v1/notifications/status
func (s *Server) handleNotificationSystem(w http.ResponseWriter, r *http.Request) {
	if s.deps.NotificationStats == nil {
		notConfigured(w, "notifications")
		return
	}
	stats, err := s.deps.NotificationStats.System(r.Context())
	if err != nil {
		s.writeError(w, r, "notification status", fmt.Errorf("system stats: %w", err))
		return
	}
	writeJSONWithMeta(w, r, http.StatusOK, stats, nil)
}
