// Package compliance generates property compliance reports from NYC and
// Philadelphia open data: property resolution, violation collection, and
// scoring.
package compliance

import (
	"math"

	"github.com/propply/compliance-cli/internal/model"
)

// Per-violation score penalties. DOB violations weigh heavier because they
// indicate structural or code issues rather than maintenance ones.
const (
	hpdPenalty = 10
	dobPenalty = 15
)

// CalculateScores derives compliance scores from a violation snapshot.
// Each score starts at 100 and loses a fixed penalty per active violation,
// floored at zero. The overall score is the mean of the HPD and DOB
// scores. All scores are rounded to one decimal place.
func CalculateScores(snap model.ViolationSnapshot) model.ComplianceScores {
	hpd := math.Max(0, float64(100-snap.HPDViolationsActive*hpdPenalty))
	dob := math.Max(0, float64(100-snap.DOBViolationsActive*dobPenalty))
	overall := (hpd + dob) / 2

	return model.ComplianceScores{
		HPDScore:     round1(hpd),
		DOBScore:     round1(dob),
		OverallScore: round1(overall),
		Snapshot:     snap,
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
