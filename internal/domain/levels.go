package domain

// ComplexityLevel buckets a 1–10 complexity score.
type ComplexityLevel string

// Complexity levels
const (
	ComplexitySimple   ComplexityLevel = "Simple"   // 1-3
	ComplexityModerate ComplexityLevel = "Moderate" // 4-6
	ComplexityComplex  ComplexityLevel = "Complex"  // 7-8
	ComplexityCritical ComplexityLevel = "Critical" // 9-10
)

// ComplexityLevelFor returns the level for a clamped score
func ComplexityLevelFor(score int) ComplexityLevel {
	switch {
	case score >= 9:
		return ComplexityCritical
	case score >= 7:
		return ComplexityComplex
	case score >= 4:
		return ComplexityModerate
	default:
		return ComplexitySimple
	}
}

// RiskLevel is the LOW/MEDIUM/HIGH rating of a task.
type RiskLevel string

// Risk levels
const (
	RiskLow    RiskLevel = "LOW"
	RiskMedium RiskLevel = "MEDIUM"
	RiskHigh   RiskLevel = "HIGH"
)

// RiskLevelFor returns the level for a risk score
func RiskLevelFor(score int) RiskLevel {
	switch {
	case score >= 6:
		return RiskHigh
	case score >= 3:
		return RiskMedium
	default:
		return RiskLow
	}
}

// IsHigherThan checks if this risk level is higher than another
func (r RiskLevel) IsHigherThan(other RiskLevel) bool {
	return riskRank(r) > riskRank(other)
}

func riskRank(r RiskLevel) int {
	switch r {
	case RiskHigh:
		return 3
	case RiskMedium:
		return 2
	case RiskLow:
		return 1
	default:
		return 0
	}
}

// PriorityLabel is the label for a 0–100 priority score.
type PriorityLabel string

// Priority labels
const (
	PriorityCritical PriorityLabel = "CRITICAL"
	PriorityHigh     PriorityLabel = "HIGH"
	PriorityMedium   PriorityLabel = "MEDIUM"
	PriorityLow      PriorityLabel = "LOW"
)

// PriorityLabelFor returns the label for a clamped priority score
func PriorityLabelFor(score int) PriorityLabel {
	switch {
	case score >= 80:
		return PriorityCritical
	case score >= 60:
		return PriorityHigh
	case score >= 40:
		return PriorityMedium
	default:
		return PriorityLow
	}
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
