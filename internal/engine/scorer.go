package engine

import (
	"github.com/mikey/mail-threat-analyzer/internal/core"
)

// MaxScore is the ceiling of the risk score
const MaxScore = 100

// Score sums the severity weights of indicators, capped at MaxScore
func Score(indicators []core.Indicator) int {
	total := 0
	for _, ind := range indicators {
		total += ind.Severity.Weight()
		if total >= MaxScore {
			return MaxScore
		}
	}
	return total
}

// RiskLevelFor maps a score to its presentation band
func RiskLevelFor(score int) core.RiskLevel {
	switch {
	case score >= 80:
		return core.RiskCritical
	case score >= 60:
		return core.RiskHigh
	case score >= 40:
		return core.RiskMedium
	case score >= 20:
		return core.RiskLow
	default:
		return core.RiskMinimal
	}
}
