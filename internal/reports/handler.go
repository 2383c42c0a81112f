package reports

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	paretoapp "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/pareto/application"
	pareto "github.com/H0ussamCl4p/iiot-predictive-maintenance/internal/pareto/domain"
)

// Clock provides time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Handler serves downloadable Pareto exports.
type Handler struct {
	pareto *paretoapp.Service
	clock  Clock
}

// HandlerOption customizes the handler.
type HandlerOption func(*Handler)

// WithClock assigns a clock.
func WithClock(clock Clock) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// NewHandler constructs the export handler.
func NewHandler(paretoSvc *paretoapp.Service, opts ...HandlerOption) (*Handler, error) {
	if paretoSvc == nil {
		return nil, errors.New("reports handler: nil pareto service")
	}
	handler := &Handler{pareto: paretoSvc, clock: systemClock{}}
	for _, opt := range opts {
		opt(handler)
	}
	return handler, nil
}

// ServeHTTP routes export downloads.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	switch r.URL.Path {
	case "/api/v1/exports/pareto.xlsx":
		h.handlePareto(w, r, "xlsx")
	case "/api/v1/exports/pareto.pdf":
		h.handlePareto(w, r, "pdf")
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handlePareto(w http.ResponseWriter, r *http.Request, format string) {
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
	machineID := r.URL.Query().Get("machine_id")

	var (
		analysis pareto.Analysis
		err      error
	)
	switch kind {
	case "anomalies":
		analysis, err = h.pareto.Anomalies(r.Context(), days, machineID)
	case "maintenance":
		analysis, err = h.pareto.Maintenance(r.Context(), days)
	default:
		http.Error(w, "type must be anomalies or maintenance", http.StatusBadRequest)
		return
	}
	if err != nil {
		if errors.Is(err, paretoapp.ErrInvalidWindow) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		http.Error(w, "pareto analysis error", http.StatusInternalServerError)
		return
	}

	report := ParetoReport{
		Kind:        kind,
		WindowDays:  days,
		MachineID:   machineID,
		GeneratedAt: h.clock.Now(),
		Analysis:    analysis,
	}
	filename := fmt.Sprintf("pareto-%s-%dd.%s", kind, days, format)

	var payload []byte
	switch format {
	case "xlsx":
		payload, err = BuildParetoXLSX(report)
		w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	case "pdf":
		payload, err = BuildParetoPDF(report)
		w.Header().Set("Content-Type", "application/pdf")
	}
	if err != nil {
		http.Error(w, "render export error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	_, _ = w.Write(payload)
}
