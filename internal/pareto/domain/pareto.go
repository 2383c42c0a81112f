package pareto

import "sort"

// VitalFewCutoff is the cumulative percentage bounding the "vital few"
// prefix of a Pareto analysis.
const VitalFewCutoff = 80.0

// Event is one occurrence of a contributing factor, optionally costed.
type Event struct {
	Factor string
	Cost   float64
}

// Entry is one row of the ranked analysis.
type Entry struct {
	Factor       string  `json:"factor"`
	Count        int     `json:"count"`
	CostEstimate float64 `json:"cost_estimate"`
	Percentage   float64 `json:"percentage"`
	Cumulative   float64 `json:"cumulative"`
	VitalFew     bool    `json:"vital_few"`
}

// Analysis is the ranked factor breakdown plus the vital-few prefix.
type Analysis struct {
	Entries  []Entry  `json:"entries"`
	VitalFew []string `json:"vital_few"`
	Total    int      `json:"total"`
}

// Analyze ranks events by factor frequency. Entries are sorted by count
// descending with ties broken by factor name, cumulative percentages are
// non-decreasing and reach 100 on the last entry, and the vital few is the
// leading prefix whose cumulative share stays within the cutoff. Empty input
// yields an empty analysis.
func Analyze(events []Event) Analysis {
	if len(events) == 0 {
		return Analysis{}
	}

	counts := make(map[string]int)
	costs := make(map[string]float64)
	for _, evt := range events {
		if evt.Factor == "" {
			continue
		}
		counts[evt.Factor]++
		costs[evt.Factor] += evt.Cost
	}
	if len(counts) == 0 {
		return Analysis{}
	}

	total := 0
	entries := make([]Entry, 0, len(counts))
	for factor, count := range counts {
		total += count
		entries = append(entries, Entry{
			Factor:       factor,
			Count:        count,
			CostEstimate: costs[factor],
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Count != entries[j].Count {
			return entries[i].Count > entries[j].Count
		}
		return entries[i].Factor < entries[j].Factor
	})

	cumulative := 0.0
	vital := make([]string, 0, len(entries))
	for i := range entries {
		entries[i].Percentage = float64(entries[i].Count) / float64(total) * 100
		cumulative += entries[i].Percentage
		entries[i].Cumulative = cumulative
		if cumulative <= VitalFewCutoff {
			entries[i].VitalFew = true
			vital = append(vital, entries[i].Factor)
		}
	}
	// compensate float drift so the invariant holds exactly
	entries[len(entries)-1].Cumulative = 100

	return Analysis{Entries: entries, VitalFew: vital, Total: total}
}
