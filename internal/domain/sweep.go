package domain

import (
	"strings"
	"time"
)

// Sweep tracks a parameter sweep's fan-out children and best-result
// selection. It reuses Job's state set; only QUEUED/RUNNING/COMPLETED occur
// in practice.
type Sweep struct {
	ID              int64     `json:"id"`
	Name            string    `json:"name"`
	Description     string    `json:"description,omitempty"`
	State           JobState  `json:"state"`
	TotalChildren   int       `json:"totalChildren"`
	Completed       int       `json:"completed"`
	Failed          int       `json:"failed"`
	OptimizeMetric  string    `json:"optimizationMetric"`
	BestJobID       *int64    `json:"bestJobId,omitempty"`
	BestMetricValue *float64  `json:"bestMetricValue,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Done reports whether every child has reached a terminal state.
func (s *Sweep) Done() bool {
	return s.Completed+s.Failed >= s.TotalChildren
}

// ParameterCombination is one point in a sweep's parameter grid for a single
// strategy.
type ParameterCombination map[string]any

// SweepStrategySpec is one {strategy name, [parameter combinations]} entry
// of a sweep request.
type SweepStrategySpec struct {
	Strategy     string                  `json:"strategy"`
	Combinations []ParameterCombination  `json:"parameterCombinations"`
}

func normalizeMetricName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
