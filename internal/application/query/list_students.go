package query

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/alem-hub/cf-progress-hub/internal/domain/shared"
	"github.com/alem-hub/cf-progress-hub/internal/domain/student"
)

// ══════════════════════════════════════════════════════════════════════════════
// LIST STUDENTS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// MaxListLimit caps a single page.
const MaxListLimit = 500

// ListStudentsQuery contains pagination and sorting.
type ListStudentsQuery struct {
	Offset   int
	Limit    int
	SortBy   string
	SortDesc bool
}

// ListStudentsResult is one page of students.
type ListStudentsResult struct {
	Students []StudentDTO `json:"students"`
	Total    int          `json:"total"`
}

// ListStudentsHandler lists and exports students.
type ListStudentsHandler struct {
	studentRepo student.Repository
}

// NewListStudentsHandler creates a new ListStudentsHandler.
func NewListStudentsHandler(studentRepo student.Repository) *ListStudentsHandler {
	return &ListStudentsHandler{studentRepo: studentRepo}
}

func (q ListStudentsQuery) options() (student.ListOptions, error) {
	opts := student.DefaultListOptions()
	if q.SortBy != "" {
		field := student.SortField(q.SortBy)
		if !field.IsValid() {
			return opts, shared.NewDomainError("student", "List", shared.ErrInvalidArgument,
				fmt.Sprintf("unsupported sort field %q", q.SortBy))
		}
		opts = opts.WithSort(field, q.SortDesc)
	}
	if q.Offset < 0 || q.Limit < 0 {
		return opts, shared.NewDomainError("student", "List", shared.ErrInvalidArgument, "offset and limit must be non-negative")
	}
	limit := q.Limit
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	return opts.WithOffset(q.Offset).WithLimit(limit), nil
}

// Handle returns one page, newest registration first by default.
func (h *ListStudentsHandler) Handle(ctx context.Context, q ListStudentsQuery) (*ListStudentsResult, error) {
	opts, err := q.options()
	if err != nil {
		return nil, err
	}

	students, err := h.studentRepo.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list_students: %w", err)
	}
	total, err := h.studentRepo.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("list_students: count: %w", err)
	}

	result := &ListStudentsResult{Students: make([]StudentDTO, 0, len(students)), Total: total}
	for _, s := range students {
		result.Students = append(result.Students, NewStudentDTO(s))
	}
	return result, nil
}

// csvHeader is the column layout of the export.
var csvHeader = []string{"Name", "Email", "Phone", "CF Handle", "Current Rating", "Max Rating", "Last Sync"}

// ExportCSV writes every student as CSV.
func (h *ListStudentsHandler) ExportCSV(ctx context.Context, w io.Writer) error {
	students, err := h.studentRepo.List(ctx, student.DefaultListOptions())
	if err != nil {
		return fmt.Errorf("export_csv: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("export_csv: %w", err)
	}
	for _, s := range students {
		lastSync := "Never"
		if s.LastSyncedAt != nil {
			lastSync = s.LastSyncedAt.UTC().Format(time.RFC3339)
		}
		row := []string{
			s.Name,
			s.Contact.Email,
			s.Contact.Phone,
			s.Handle.String(),
			strconv.Itoa(s.CurrentRating),
			strconv.Itoa(s.MaxRating),
			lastSync,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("export_csv: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
