package tasks

import (
	"errors"
	"sort"
	"time"
)

// Priority ranks a task independent of its quadrant.
type Priority string

const (
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
)

// Status tracks task progress. Tasks are never auto-deleted.
type Status string

const (
	StatusNotStarted Status = "NOT_STARTED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusDone       Status = "DONE"
)

// Quadrant is the Eisenhower classification.
type Quadrant string

const (
	QuadrantDoFirst   Quadrant = "DO_FIRST"
	QuadrantSchedule  Quadrant = "SCHEDULE"
	QuadrantDelegate  Quadrant = "DELEGATE"
	QuadrantEliminate Quadrant = "ELIMINATE"
)

// Source records what created a task.
type Source string

const (
	SourceManual  Source = "manual"
	SourceAnomaly Source = "anomaly"
	SourceRUL     Source = "rul"
)

// UrgentWithinDays is the due-date horizon that makes a task urgent.
const UrgentWithinDays = 7

// ErrNotFound is returned when a task does not exist.
var ErrNotFound = errors.New("tasks: not found")

// ErrInvalidTransition is returned for status moves outside the lifecycle.
var ErrInvalidTransition = errors.New("tasks: invalid status transition")

// MaintenanceTask is one unit of maintenance work, optionally traceable to
// the anomaly or prediction that raised it.
type MaintenanceTask struct {
	ID               string    `json:"id"`
	MachineID        string    `json:"machine_id"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	Category         string    `json:"category,omitempty"`
	Priority         Priority  `json:"priority"`
	Status           Status    `json:"status"`
	Quadrant         Quadrant  `json:"quadrant"`
	Source           Source    `json:"source"`
	Informational    bool      `json:"informational,omitempty"`
	DueAt            time.Time `json:"due_at"`
	CostEstimate     float64   `json:"cost_estimate,omitempty"`
	AnomalyID        string    `json:"anomaly_id,omitempty"`
	AIDetectedCause  string    `json:"ai_detected_cause,omitempty"`
	TriggerVibration float64   `json:"trigger_vibration,omitempty"`
	TriggerTemp      float64   `json:"trigger_temperature,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// ClassifyEisenhower maps urgency and importance onto a quadrant. Total over
// both booleans.
func ClassifyEisenhower(urgent, important bool) Quadrant {
	switch {
	case urgent && important:
		return QuadrantDoFirst
	case !urgent && important:
		return QuadrantSchedule
	case urgent && !important:
		return QuadrantDelegate
	default:
		return QuadrantEliminate
	}
}

// IsUrgent reports whether a task is urgent at a point in time: due within
// the horizon or raised at high priority.
func (t MaintenanceTask) IsUrgent(now time.Time) bool {
	if t.Priority == PriorityHigh {
		return true
	}
	if t.DueAt.IsZero() {
		return false
	}
	return !t.DueAt.After(now.AddDate(0, 0, UrgentWithinDays))
}

// IsImportant reports importance. Maintenance work is important unless
// explicitly marked informational.
func (t MaintenanceTask) IsImportant() bool {
	return !t.Informational
}

// Classify stamps the quadrant from the task's urgency and importance.
func (t *MaintenanceTask) Classify(now time.Time) {
	t.Quadrant = ClassifyEisenhower(t.IsUrgent(now), t.IsImportant())
}

// CanTransition reports whether the status move follows the lifecycle
// NOT_STARTED -> IN_PROGRESS -> DONE. Reopening a done task is allowed.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusNotStarted:
		return to == StatusInProgress || to == StatusDone
	case StatusInProgress:
		return to == StatusDone || to == StatusNotStarted
	case StatusDone:
		return to == StatusInProgress
	default:
		return false
	}
}

var priorityRank = map[Priority]int{
	PriorityHigh:   0,
	PriorityMedium: 1,
	PriorityLow:    2,
}

var quadrantRank = map[Quadrant]int{
	QuadrantDoFirst:   0,
	QuadrantSchedule:  1,
	QuadrantDelegate:  2,
	QuadrantEliminate: 3,
}

// SortForExecution orders tasks the way an operator works them: quadrant
// first, then priority, then earliest due date.
func SortForExecution(list []MaintenanceTask) {
	sort.SliceStable(list, func(i, j int) bool {
		qi, qj := quadrantRank[list[i].Quadrant], quadrantRank[list[j].Quadrant]
		if qi != qj {
			return qi < qj
		}
		pi, pj := priorityRank[list[i].Priority], priorityRank[list[j].Priority]
		if pi != pj {
			return pi < pj
		}
		di, dj := list[i].DueAt, list[j].DueAt
		if di.IsZero() != dj.IsZero() {
			return dj.IsZero()
		}
		return di.Before(dj)
	})
}
