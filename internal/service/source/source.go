package source

import (
	"context"
	"time"

	"github.com/rikseotools/vence/internal/model"
)

// Source turns one upstream signal into notification candidates.
type Source interface {
	// Name returns the adapter name used for ordering and metrics.
	Name() model.SourceName

	// Candidates computes the current candidates for a user. Implementations
	// must not write anything.
	Candidates(ctx context.Context, userID string, now time.Time) ([]model.Candidate, error)
}

// Thresholds decide when analytics rows become candidates.
type Thresholds struct {
	// ProblematicMaxAccuracy is the accuracy (percent) below which an article
	// is problematic.
	ProblematicMaxAccuracy float64
	// ProblematicMinAttempts ignores articles answered fewer times.
	ProblematicMinAttempts int
	// MaxArticlesPerLaw caps the articles listed in one notification.
	MaxArticlesPerLaw int
	// RegressionMinDrop is the accuracy loss in points that counts as a regression.
	RegressionMinDrop float64
	// ScoreBandWidth quantizes weekly average scores.
	ScoreBandWidth int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		ProblematicMaxAccuracy: 70,
		ProblematicMinAttempts: 2,
		MaxArticlesPerLaw:      5,
		RegressionMinDrop:      15,
		ScoreBandWidth:         5,
	}
}

func (t Thresholds) withDefaults() Thresholds {
	d := DefaultThresholds()
	if t.ProblematicMaxAccuracy <= 0 {
		t.ProblematicMaxAccuracy = d.ProblematicMaxAccuracy
	}
	if t.ProblematicMinAttempts <= 0 {
		t.ProblematicMinAttempts = d.ProblematicMinAttempts
	}
	if t.MaxArticlesPerLaw <= 0 {
		t.MaxArticlesPerLaw = d.MaxArticlesPerLaw
	}
	if t.RegressionMinDrop <= 0 {
		t.RegressionMinDrop = d.RegressionMinDrop
	}
	if t.ScoreBandWidth <= 0 {
		t.ScoreBandWidth = d.ScoreBandWidth
	}
	return t
}

func candidate(src model.SourceName, t model.NotificationType, payload model.Payload, title, message string, at time.Time) model.Candidate {
	c := model.NewCandidate(t, payload, title, message, at)
	c.Source = src
	return c
}

func lawLabel(code, name string) string {
	if name != "" {
		return name
	}
	return code
}
