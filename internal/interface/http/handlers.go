package http

import (
	"encoding/json"
	"net/http"

	"github.com/rollcall-hub/rollcall/internal/application/command"
	"github.com/rollcall-hub/rollcall/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH & STATUS HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

// handleRoot serves the root endpoint with basic API information.
func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":    "Rollcall API",
		"version": "v1",
		"endpoints": map[string]string{
			"health":     "/health",
			"unassigned": "/api/v1/devices/unassigned",
			"pending":    "/api/v1/devices/pending",
			"attendance": "/api/v1/attendance",
			"report":     "/api/v1/report.csv",
		},
	})
}

// handleHealth handles the health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"uptime":  s.Uptime().String(),
		"session": s.deps.ActiveSession().String(),
	})
}

// handleLive handles the liveness probe endpoint.
func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// REGISTRY REVIEW HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleUnassignedDevices(w http.ResponseWriter, r *http.Request) {
	views, err := s.deps.Devices.Unassigned(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handlePendingDevices(w http.ResponseWriter, r *http.Request) {
	views, err := s.deps.Devices.PendingReview(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id, err := shared.NewDeviceID(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	view, err := s.deps.Devices.Device(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type confirmRequest struct {
	StudentID string `json:"student_id"`
	Force     bool   `json:"force"`
}

func (s *Server) handleConfirmDevice(w http.ResponseWriter, r *http.Request) {
	id, err := shared.NewDeviceID(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req confirmRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	student, err := shared.ParseStudentID(req.StudentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := s.deps.Overrides.ConfirmAssignment(r.Context(), command.ConfirmAssignmentCommand{
		Identifier: id,
		StudentID:  student,
		Session:    s.deps.ActiveSession(),
		Force:      req.Force,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleRejectDevice(w http.ResponseWriter, r *http.Request) {
	id, err := shared.NewDeviceID(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := s.deps.Overrides.RejectAssignment(r.Context(), command.RejectAssignmentCommand{
		Identifier: id,
		Session:    s.deps.ActiveSession(),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleUnassignDevice(w http.ResponseWriter, r *http.Request) {
	id, err := shared.NewDeviceID(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	result, err := s.deps.Overrides.UnassignDevice(r.Context(), command.UnassignDeviceCommand{
		Identifier: id,
		Session:    s.deps.ActiveSession(),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// ROSTER HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

type addStudentRequest struct {
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Devices []string `json:"devices"`
}

func (s *Server) handleAddStudent(w http.ResponseWriter, r *http.Request) {
	var req addStudentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	student, err := s.deps.Roster.AddStudent(r.Context(), command.AddStudentCommand{
		Name:    req.Name,
		Email:   req.Email,
		Devices: req.Devices,
		Session: s.deps.ActiveSession(),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, student)
}

func (s *Server) handleRemoveStudent(w http.ResponseWriter, r *http.Request) {
	student, err := shared.ParseStudentID(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	err = s.deps.Roster.RemoveStudent(r.Context(), command.RemoveStudentCommand{
		StudentID: student,
		Session:   s.deps.ActiveSession(),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"removed": student.String()})
}

type bindDeviceRequest struct {
	Identifier string `json:"identifier"`
}

func (s *Server) handleBindDevice(w http.ResponseWriter, r *http.Request) {
	student, err := shared.ParseStudentID(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req bindDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	id, err := shared.NewDeviceID(req.Identifier)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	err = s.deps.Roster.BindDevice(r.Context(), command.BindDeviceCommand{
		StudentID:  student,
		Identifier: id,
		Session:    s.deps.ActiveSession(),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"bound": id.String()})
}

func (s *Server) handleUnbindDevice(w http.ResponseWriter, r *http.Request) {
	student, err := shared.ParseStudentID(r.PathValue("id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	id, err := shared.NewDeviceID(r.PathValue("device"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	err = s.deps.Roster.UnbindDevice(r.Context(), command.UnbindDeviceCommand{
		StudentID:  student,
		Identifier: id,
		Session:    s.deps.ActiveSession(),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"unbound": id.String()})
}

type importRosterRequest struct {
	Entries []addStudentRequest `json:"entries"`
}

func (s *Server) handleImportRoster(w http.ResponseWriter, r *http.Request) {
	var req importRosterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	entries := make([]command.ImportEntry, 0, len(req.Entries))
	for _, e := range req.Entries {
		entries = append(entries, command.ImportEntry{Name: e.Name, Email: e.Email, Devices: e.Devices})
	}

	result, err := s.deps.Roster.ImportRoster(r.Context(), command.ImportRosterCommand{
		Entries: entries,
		Session: s.deps.ActiveSession(),
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTENDANCE HANDLERS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.deps.Snapshot.Snapshot(r.Context(), s.deps.ActiveSession())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

type markAttendanceRequest struct {
	Present bool `json:"present"`
}

func (s *Server) handleMarkAttendance(w http.ResponseWriter, r *http.Request) {
	student, err := shared.ParseStudentID(r.PathValue("student_id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var req markAttendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}

	result, err := s.deps.Overrides.MarkAttendance(r.Context(), command.MarkAttendanceCommand{
		StudentID: student,
		Session:   s.deps.ActiveSession(),
		Present:   req.Present,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleReportJSON(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Report.Report(r.Context(), s.deps.ActiveSession())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleReportCSV(w http.ResponseWriter, r *http.Request) {
	report, err := s.deps.Report.Report(r.Context(), s.deps.ActiveSession())
	if err != nil {
		writeDomainError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="attendance.csv"`)
	if err := report.WriteCSV(w); err != nil {
		s.logger.Error("report CSV write failed", "error", err)
	}
}
