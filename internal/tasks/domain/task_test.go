package tasks

import (
	"testing"
	"time"
)

func TestClassifyEisenhowerTotality(t *testing.T) {
	tests := []struct {
		urgent, important bool
		want              Quadrant
	}{
		{true, true, QuadrantDoFirst},
		{false, true, QuadrantSchedule},
		{true, false, QuadrantDelegate},
		{false, false, QuadrantEliminate},
	}
	for _, tc := range tests {
		if got := ClassifyEisenhower(tc.urgent, tc.important); got != tc.want {
			t.Errorf("ClassifyEisenhower(%v, %v) = %s, want %s", tc.urgent, tc.important, got, tc.want)
		}
	}
}

func TestIsUrgent(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		task MaintenanceTask
		want bool
	}{
		{"due tomorrow", MaintenanceTask{Priority: PriorityMedium, DueAt: now.AddDate(0, 0, 1)}, true},
		{"due in exactly seven days", MaintenanceTask{Priority: PriorityLow, DueAt: now.AddDate(0, 0, 7)}, true},
		{"due in eight days", MaintenanceTask{Priority: PriorityMedium, DueAt: now.AddDate(0, 0, 8)}, false},
		{"high priority far out", MaintenanceTask{Priority: PriorityHigh, DueAt: now.AddDate(0, 1, 0)}, true},
		{"no due date low priority", MaintenanceTask{Priority: PriorityLow}, false},
		{"overdue", MaintenanceTask{Priority: PriorityLow, DueAt: now.AddDate(0, 0, -2)}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.task.IsUrgent(now); got != tc.want {
				t.Fatalf("IsUrgent = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestClassifyStampsQuadrant(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	task := MaintenanceTask{Priority: PriorityHigh, DueAt: now.AddDate(0, 0, 2)}
	task.Classify(now)
	if task.Quadrant != QuadrantDoFirst {
		t.Fatalf("quadrant = %s, want %s", task.Quadrant, QuadrantDoFirst)
	}

	task = MaintenanceTask{Priority: PriorityMedium, DueAt: now.AddDate(0, 1, 0)}
	task.Classify(now)
	if task.Quadrant != QuadrantSchedule {
		t.Fatalf("quadrant = %s, want %s", task.Quadrant, QuadrantSchedule)
	}

	task = MaintenanceTask{Priority: PriorityHigh, Informational: true}
	task.Classify(now)
	if task.Quadrant != QuadrantDelegate {
		t.Fatalf("quadrant = %s, want %s", task.Quadrant, QuadrantDelegate)
	}

	task = MaintenanceTask{Priority: PriorityLow, Informational: true, DueAt: now.AddDate(0, 2, 0)}
	task.Classify(now)
	if task.Quadrant != QuadrantEliminate {
		t.Fatalf("quadrant = %s, want %s", task.Quadrant, QuadrantEliminate)
	}
}

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, to Status }{
		{StatusNotStarted, StatusInProgress},
		{StatusNotStarted, StatusDone},
		{StatusInProgress, StatusDone},
		{StatusInProgress, StatusNotStarted},
		{StatusDone, StatusInProgress},
	}
	for _, tc := range allowed {
		if !CanTransition(tc.from, tc.to) {
			t.Errorf("transition %s -> %s should be allowed", tc.from, tc.to)
		}
	}
	denied := []struct{ from, to Status }{
		{StatusDone, StatusNotStarted},
		{StatusNotStarted, StatusNotStarted},
		{StatusDone, StatusDone},
		{Status("bogus"), StatusDone},
	}
	for _, tc := range denied {
		if CanTransition(tc.from, tc.to) {
			t.Errorf("transition %s -> %s should be denied", tc.from, tc.to)
		}
	}
}

func TestSortForExecution(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	list := []MaintenanceTask{
		{ID: "schedule", Quadrant: QuadrantSchedule, Priority: PriorityHigh, DueAt: now.AddDate(0, 0, 20)},
		{ID: "do-late", Quadrant: QuadrantDoFirst, Priority: PriorityHigh, DueAt: now.AddDate(0, 0, 5)},
		{ID: "do-early", Quadrant: QuadrantDoFirst, Priority: PriorityHigh, DueAt: now.AddDate(0, 0, 2)},
		{ID: "do-medium", Quadrant: QuadrantDoFirst, Priority: PriorityMedium, DueAt: now.AddDate(0, 0, 1)},
		{ID: "eliminate", Quadrant: QuadrantEliminate, Priority: PriorityLow},
	}
	SortForExecution(list)

	want := []string{"do-early", "do-late", "do-medium", "schedule", "eliminate"}
	for i, id := range want {
		if list[i].ID != id {
			t.Fatalf("position %d = %s, want %s (full order %v)", i, list[i].ID, id, ids(list))
		}
	}
}

func ids(list []MaintenanceTask) []string {
	out := make([]string, len(list))
	for i, task := range list {
		out[i] = task.ID
	}
	return out
}
