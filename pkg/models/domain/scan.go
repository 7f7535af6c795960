package domain

import "time"

// ScanSummary is the aggregate result of one detection run. Pass and Error
// count controls; Fail counts individual failing findings.
type ScanSummary struct {
	ScanID      string
	Account     string
	ControlsRun int
	Pass        int
	Fail        int
	Error       int
	StartedAt   time.Time
	CompletedAt time.Time
}

// ComplianceScore aggregates all findings of an account. A finding counts
// toward the score when it is PASS or FIXED.
type ComplianceScore struct {
	Account    string
	Score      float64
	Total      int
	Pass       int
	Fail       int
	Fixed      int
	Error      int
	Manual     int
	BySeverity map[Severity]int
}

// ComputeScore derives the compliance score from a set of findings.
// BySeverity counts only the findings still failing.
func ComputeScore(account string, findings []Finding) ComplianceScore {
	score := ComplianceScore{
		Account:    account,
		BySeverity: make(map[Severity]int),
	}

	for _, f := range findings {
		score.Total++
		switch f.Status {
		case StatusPass:
			score.Pass++
		case StatusFail:
			score.Fail++
			score.BySeverity[f.RiskLevel]++
		case StatusFixed:
			score.Fixed++
		case StatusError:
			score.Error++
		case StatusManual:
			score.Manual++
			score.BySeverity[f.RiskLevel]++
		}
	}

	if score.Total > 0 {
		score.Score = float64(score.Pass+score.Fixed) / float64(score.Total) * 100
	}
	return score
}
