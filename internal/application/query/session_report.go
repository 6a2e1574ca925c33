package query

import (
	"context"
	"encoding/csv"
	"io"
	"sort"
	"time"

	"github.com/rollcall-hub/rollcall/internal/domain/attendance"
	"github.com/rollcall-hub/rollcall/internal/domain/roster"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION REPORT
// The final attendance sheet for a closed session, one row per enrolled
// student, exportable as CSV.
// ══════════════════════════════════════════════════════════════════════════════

// ReportRow is one student's final attendance line.
type ReportRow struct {
	StudentID  shared.StudentID `json:"student_id"`
	Name       string           `json:"name"`
	FinalState attendance.State `json:"final_state"`
	EnteredAt  time.Time        `json:"entered_at"`
	ExitedAt   time.Time        `json:"exited_at"`
	Present    time.Duration    `json:"present_duration"`
}

// SessionReport is the attendance sheet for one session.
type SessionReport struct {
	Session shared.SessionID `json:"session"`
	Rows    []ReportRow      `json:"rows"`
}

// SessionReportHandler builds attendance reports.
type SessionReportHandler struct {
	attendance attendance.Repository
	roster     roster.Repository
}

// NewSessionReportHandler creates a new SessionReportHandler.
func NewSessionReportHandler(attendanceRepo attendance.Repository, rosterRepo roster.Repository) *SessionReportHandler {
	return &SessionReportHandler{attendance: attendanceRepo, roster: rosterRepo}
}

// Report assembles the sheet, ordered by student name. Students with no
// attendance record appear as absent.
func (h *SessionReportHandler) Report(ctx context.Context, session shared.SessionID) (*SessionReport, error) {
	students, err := h.roster.All(ctx)
	if err != nil {
		return nil, err
	}
	records, err := h.attendance.BySession(ctx, session)
	if err != nil {
		return nil, err
	}

	byStudent := make(map[shared.StudentID]*attendance.Record, len(records))
	for _, rec := range records {
		byStudent[rec.Student] = rec
	}

	report := &SessionReport{Session: session, Rows: make([]ReportRow, 0, len(students))}
	for _, student := range students {
		row := ReportRow{
			StudentID:  student.ID,
			Name:       student.Name,
			FinalState: attendance.StateAbsent,
		}
		if rec, ok := byStudent[student.ID]; ok {
			row.FinalState = rec.State()
			row.EnteredAt = rec.EnteredAt()
			row.ExitedAt = rec.ExitedAt()
			row.Present = rec.PresentDuration(row.ExitedAt)
		}
		report.Rows = append(report.Rows, row)
	}

	sort.SliceStable(report.Rows, func(i, j int) bool {
		return report.Rows[i].Name < report.Rows[j].Name
	})
	return report, nil
}

// WriteCSV renders the report with a header row. Zero times render empty.
func (r *SessionReport) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"student_id", "name", "final_state", "entered_at", "exited_at"}); err != nil {
		return err
	}
	for _, row := range r.Rows {
		record := []string{
			row.StudentID.String(),
			row.Name,
			string(row.FinalState),
			formatTime(row.EnteredAt),
			formatTime(row.ExitedAt),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
