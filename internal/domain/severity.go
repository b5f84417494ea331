package domain

const (
	moderateThreshold = 1.5
	severeThreshold   = 2.0
	extremeThreshold  = 3.0
)

// Severity tiers for hail diameter in inches.
const (
	SeverityMild     = "mild"
	SeverityModerate = "moderate"
	SeveritySevere   = "severe"
	SeverityExtreme  = "extreme"
)

// ClassifySeverity buckets a hail diameter (inches) into a severity tier.
// Each tier includes its lower bound: 3.0 is extreme, 2.0 severe, 1.5 moderate.
func ClassifySeverity(magnitude float64) string {
	switch {
	case magnitude >= extremeThreshold:
		return SeverityExtreme
	case magnitude >= severeThreshold:
		return SeveritySevere
	case magnitude >= moderateThreshold:
		return SeverityModerate
	default:
		return SeverityMild
	}
}
