package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/audit"
	"github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/auth"
	healthapp "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/health/application"
	health "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/health/domain"
	masterdata "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/masterdata/domain"
	paretoapp "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/pareto/application"
	rulapp "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/rul/application"
	tasksapp "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/tasks/application"
	tasks "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/tasks/domain"
	telemetry "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/telemetry/domain"
)

const (
	defaultHistoryLimit = 100
	defaultAlertLimit   = 50
)

// Handler provides the dashboard-facing APIs: live readings, history, daily
// stats, health snapshots, failure predictions, Pareto analyses, maintenance
// tasks and the machine registry.
type Handler struct {
	history  telemetry.HistoryQuery
	health   *healthapp.Service
	rul      *rulapp.Service
	pareto   *paretoapp.Service
	tasks    *tasksapp.Service
	machines masterdata.MachineRepository

	auditor audit.Logger
	checker auth.MachineChecker
}

// HandlerOption customizes the handler.
type HandlerOption func(*Handler)

// WithAuditor assigns an audit logger for mutating requests.
func WithAuditor(logger audit.Logger) HandlerOption {
	return func(h *Handler) {
		h.auditor = logger
	}
}

// WithMachineChecker assigns a registration checker for machine-scoped reads.
func WithMachineChecker(checker auth.MachineChecker) HandlerOption {
	return func(h *Handler) {
		h.checker = checker
	}
}

// NewHandler constructs the API handler.
func NewHandler(
	history telemetry.HistoryQuery,
	healthSvc *healthapp.Service,
	rulSvc *rulapp.Service,
	paretoSvc *paretoapp.Service,
	taskSvc *tasksapp.Service,
	machines masterdata.MachineRepository,
	opts ...HandlerOption,
) (*Handler, error) {
	if history == nil || healthSvc == nil || rulSvc == nil || paretoSvc == nil || taskSvc == nil || machines == nil {
		return nil, errors.New("api handler: nil dependency")
	}
	handler := &Handler{
		history:  history,
		health:   healthSvc,
		rul:      rulSvc,
		pareto:   paretoSvc,
		tasks:    taskSvc,
		machines: machines,
	}
	for _, opt := range opts {
		opt(handler)
	}
	return handler, nil
}

// ServeHTTP routes the API endpoints.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.URL.Path == "/api/v1/live" && r.Method == http.MethodGet:
		h.handleLive(w, r)
	case r.URL.Path == "/api/v1/history" && r.Method == http.MethodGet:
		h.handleHistory(w, r)
	case r.URL.Path == "/api/v1/stats" && r.Method == http.MethodGet:
		h.handleStats(w, r)
	case r.URL.Path == "/api/v1/health" && r.Method == http.MethodGet:
		h.handleHealth(w, r)
	case r.URL.Path == "/api/v1/rul" && r.Method == http.MethodGet:
		h.handleRUL(w, r)
	case r.URL.Path == "/api/v1/pareto" && r.Method == http.MethodGet:
		h.handlePareto(w, r)
	case r.URL.Path == "/api/v1/alerts" && r.Method == http.MethodGet:
		h.handleAlerts(w, r)
	case r.URL.Path == "/api/v1/tasks" && r.Method == http.MethodGet:
		h.handleTaskList(w, r)
	case r.URL.Path == "/api/v1/tasks" && r.Method == http.MethodPost:
		h.handleTaskCreate(w, r)
	case strings.HasPrefix(r.URL.Path, "/api/v1/tasks/"):
		h.handleTaskByID(w, r)
	case r.URL.Path == "/api/v1/machines" && r.Method == http.MethodGet:
		h.handleMachineList(w, r)
	case r.URL.Path == "/api/v1/machines" && r.Method == http.MethodPost:
		h.handleMachineSave(w, r)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	machineID := r.URL.Query().Get("machine_id")
	if machineID == "" {
		http.Error(w, "machine_id required", http.StatusBadRequest)
		return
	}
	if !h.ensureMachine(w, r, machineID) {
		return
	}
	reading, err := h.history.Latest(r.Context(), machineID)
	if err != nil {
		http.Error(w, "query latest error", http.StatusInternalServerError)
		return
	}
	if reading == nil {
		http.Error(w, "no readings for machine", http.StatusNotFound)
		return
	}
	resp := struct {
		Reading *telemetry.ScoredReading `json:"reading"`
		Health  *health.Snapshot         `json:"health,omitempty"`
	}{Reading: reading}
	if snap, err := h.health.Snapshot(r.Context(), machineID); err == nil {
		resp.Health = &snap
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	machineID := r.URL.Query().Get("machine_id")
	if machineID == "" {
		http.Error(w, "machine_id required", http.StatusBadRequest)
		return
	}
	if !h.ensureMachine(w, r, machineID) {
		return
	}
	limit := defaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	readings, err := h.history.LastN(r.Context(), machineID, limit)
	if err != nil {
		http.Error(w, "query history error", http.StatusInternalServerError)
		return
	}
	if readings == nil {
		readings = []telemetry.ScoredReading{}
	}
	writeJSON(w, http.StatusOK, readings)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	since := time.Now().UTC().Add(-24 * time.Hour)
	machineID := r.URL.Query().Get("machine_id")
	if machineID != "" {
		if !h.ensureMachine(w, r, machineID) {
			return
		}
		stats, err := h.history.Stats(r.Context(), machineID, since)
		if err != nil {
			http.Error(w, "query stats error", http.StatusInternalServerError)
			return
		}
		if stats == nil {
			http.Error(w, "no readings for machine", http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, stats)
		return
	}

	ids, err := h.history.MachineIDs(r.Context(), since)
	if err != nil {
		http.Error(w, "query stats error", http.StatusInternalServerError)
		return
	}
	out := make([]telemetry.DailyStats, 0, len(ids))
	for _, id := range ids {
		stats, err := h.history.Stats(r.Context(), id, since)
		if err != nil {
			http.Error(w, "query stats error", http.StatusInternalServerError)
			return
		}
		if stats != nil {
			out = append(out, *stats)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	machineID := r.URL.Query().Get("machine_id")
	if machineID == "" {
		writeJSON(w, http.StatusOK, h.health.List())
		return
	}
	if !h.ensureMachine(w, r, machineID) {
		return
	}
	snap, err := h.health.Snapshot(r.Context(), machineID)
	if err != nil {
		if errors.Is(err, health.ErrNoHistory) {
			http.Error(w, "no readings for machine", http.StatusNotFound)
			return
		}
		http.Error(w, "compute health error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *Handler) handleRUL(w http.ResponseWriter, r *http.Request) {
	machineID := r.URL.Query().Get("machine_id")
	if machineID == "" {
		writeJSON(w, http.StatusOK, h.rul.List())
		return
	}
	estimate, ok := h.rul.Estimate(machineID)
	if !ok {
		http.Error(w, "no estimate for machine", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, estimate)
}

func (h *Handler) handlePareto(w http.ResponseWriter, r *http.Request) {
	kind := r.URL.Query().Get("type")
	if kind == "" {
		kind = "anomalies"
	}
	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			http.Error(w, "days must be an integer", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	switch kind {
	case "anomalies":
		analysis, err := h.pareto.Anomalies(r.Context(), days, r.URL.Query().Get("machine_id"))
		if err != nil {
			writeParetoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, analysis)
	case "maintenance":
		analysis, err := h.pareto.Maintenance(r.Context(), days)
		if err != nil {
			writeParetoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, analysis)
	default:
		http.Error(w, "type must be anomalies or maintenance", http.StatusBadRequest)
	}
}

// Alert is one recent non-normal reading with a human-readable cause.
type Alert struct {
	MachineID string           `json:"machine_id"`
	Timestamp time.Time        `json:"timestamp"`
	Score     float64          `json:"score"`
	Status    telemetry.Status `json:"status"`
	Cause     string           `json:"cause"`
	Message   string           `json:"message"`
}

func (h *Handler) handleAlerts(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "hours must be a positive integer", http.StatusBadRequest)
			return
		}
		hours = parsed
	}
	limit := defaultAlertLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	now := time.Now().UTC()
	since := now.Add(-time.Duration(hours) * time.Hour)
	machineIDs := []string{r.URL.Query().Get("machine_id")}
	if machineIDs[0] == "" {
		ids, err := h.history.MachineIDs(r.Context(), since)
		if err != nil {
			http.Error(w, "query alerts error", http.StatusInternalServerError)
			return
		}
		machineIDs = ids
	} else if !h.ensureMachine(w, r, machineIDs[0]) {
		return
	}

	alerts := []Alert{}
	for _, id := range machineIDs {
		readings, err := h.history.Range(r.Context(), id, since, now)
		if err != nil {
			http.Error(w, "query alerts error", http.StatusInternalServerError)
			return
		}
		for _, reading := range readings {
			if reading.Status == telemetry.StatusNormal {
				continue
			}
			alerts = append(alerts, buildAlert(reading))
		}
	}
	sort.Slice(alerts, func(i, j int) bool { return alerts[i].Timestamp.After(alerts[j].Timestamp) })
	if len(alerts) > limit {
		alerts = alerts[:limit]
	}
	writeJSON(w, http.StatusOK, alerts)
}

func buildAlert(reading telemetry.ScoredReading) Alert {
	cause := paretoapp.CauseForReading(reading)
	noun := "Warning"
	if reading.Status == telemetry.StatusAnomaly {
		noun = "Anomaly"
	}
	return Alert{
		MachineID: reading.MachineID,
		Timestamp: reading.Timestamp,
		Score:     reading.Score,
		Status:    reading.Status,
		Cause:     cause,
		Message: fmt.Sprintf("%s on %s: %s (vibration %.1f, temperature %.1f, score %.2f)",
			noun, reading.MachineID, cause, reading.Vibration, reading.Temperature, reading.Score),
	}
}

func (h *Handler) handleTaskList(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit := 0
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = parsed
	}
	list, err := h.tasks.List(r.Context(), query.Get("machine_id"), tasks.Status(query.Get("status")), limit)
	if err != nil {
		http.Error(w, "query tasks error", http.StatusInternalServerError)
		return
	}
	if list == nil {
		list = []tasks.MaintenanceTask{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	var draft tasksapp.Draft
	if err := json.NewDecoder(r.Body).Decode(&draft); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if !h.ensureMachine(w, r, draft.MachineID) {
		return
	}
	task, err := h.tasks.CreateManual(r.Context(), draft)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.logAudit(r, "task.create", "task", task.ID, task.MachineID, task)
	writeJSON(w, http.StatusCreated, task)
}

func (h *Handler) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/tasks/")
	parts := strings.Split(path, "/")
	taskID := parts[0]
	if taskID == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if len(parts) == 1 && r.Method == http.MethodGet {
		task, err := h.tasks.Get(r.Context(), taskID)
		if err != nil {
			if errors.Is(err, tasks.ErrNotFound) {
				http.Error(w, "task not found", http.StatusNotFound)
				return
			}
			http.Error(w, "query task error", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, task)
		return
	}
	if len(parts) == 2 && parts[1] == "status" && r.Method == http.MethodPost {
		h.handleTaskStatus(w, r, taskID)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *Handler) handleTaskStatus(w http.ResponseWriter, r *http.Request, taskID string) {
	var req struct {
		Status tasks.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	task, err := h.tasks.UpdateStatus(r.Context(), taskID, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, tasks.ErrNotFound):
			http.Error(w, "task not found", http.StatusNotFound)
		case errors.Is(err, tasks.ErrInvalidTransition):
			http.Error(w, err.Error(), http.StatusConflict)
		default:
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
		return
	}
	h.logAudit(r, "task.status", "task", task.ID, task.MachineID, req)
	writeJSON(w, http.StatusOK, task)
}

func (h *Handler) handleMachineList(w http.ResponseWriter, r *http.Request) {
	machines, err := h.machines.List(r.Context())
	if err != nil {
		http.Error(w, "query machines error", http.StatusInternalServerError)
		return
	}
	if machines == nil {
		machines = []masterdata.Machine{}
	}
	writeJSON(w, http.StatusOK, machines)
}

func (h *Handler) handleMachineSave(w http.ResponseWriter, r *http.Request) {
	var machine masterdata.Machine
	if err := json.NewDecoder(r.Body).Decode(&machine); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	if err := machine.Validate(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.machines.Save(r.Context(), &machine); err != nil {
		http.Error(w, "save machine error", http.StatusInternalServerError)
		return
	}
	h.logAudit(r, "machine.save", "machine", machine.ID, machine.ID, machine)
	writeJSON(w, http.StatusCreated, machine)
}

// ensureMachine rejects requests that reference unregistered machines. A nil
// checker accepts everything.
func (h *Handler) ensureMachine(w http.ResponseWriter, r *http.Request, machineID string) bool {
	if h.checker == nil || machineID == "" {
		return true
	}
	err := h.checker.EnsureMachine(r.Context(), machineID)
	if err == nil {
		return true
	}
	if errors.Is(err, auth.ErrUnknownMachine) {
		http.Error(w, "unknown machine", http.StatusNotFound)
		return false
	}
	http.Error(w, "machine lookup error", http.StatusInternalServerError)
	return false
}

func (h *Handler) logAudit(r *http.Request, action, resourceType, resourceID, machineID string, payload any) {
	if h.auditor == nil {
		return
	}
	metadata, _ := json.Marshal(payload)
	_ = h.auditor.Log(r.Context(), audit.Entry{
		PlantID:      auth.PlantIDFromContext(r.Context()),
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		MachineID:    machineID,
		Metadata:     metadata,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}

func writeParetoError(w http.ResponseWriter, err error) {
	if errors.Is(err, paretoapp.ErrInvalidWindow) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	http.Error(w, "pareto analysis error", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
