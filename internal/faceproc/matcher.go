package faceproc

import (
	"math"

	"github.com/m3-muru/facial-rpi/internal/biometric"
	"github.com/m3-muru/facial-rpi/internal/logger"
)

// Matcher scores a probe against one stored template
type Matcher interface {
	Match(probe, stored biometric.Faceprint) (biometric.MatchOutcome, error)
}

// MatchResult is the selected candidate of one authentication
type MatchResult struct {
	EmployeeID string
	Score      int
}

// SelectCandidate scans every template in index order and keeps the strictly
// highest successful score at or above threshold. On equal scores the first
// evaluated employee wins.
func SelectCandidate(m Matcher, index *FaceprintIndex, probe biometric.Faceprint, threshold int) (MatchResult, bool) {
	best := MatchResult{Score: math.MinInt}
	found := false

	for _, entry := range index.Entries() {
		for _, stored := range entry.Templates {
			outcome, err := m.Match(probe, stored)
			if err != nil {
				logger.Warn("FaceSM", "Match against %s failed: %v", entry.EmployeeID, err)
				continue
			}
			logger.Debug("FaceSM", "Comparison with %s: success=%t score=%d", entry.EmployeeID, outcome.Success, outcome.Score)
			if !outcome.Success {
				continue
			}
			if outcome.Score > best.Score && outcome.Score >= threshold {
				best = MatchResult{EmployeeID: entry.EmployeeID, Score: outcome.Score}
				found = true
			}
		}
	}
	return best, found
}
