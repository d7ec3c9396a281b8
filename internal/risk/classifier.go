// Package risk annotates help reports with a zone risk (how crowded the
// neighbourhood already is with reports) and a user risk (whether the message
// mentions a life-threatening condition).
package risk

import (
	"context"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"relief-alert-service/internal/models"
)

// NearbyDelta is the half-width, in degrees, of the box around a report that
// counts as the same zone. Roughly 1 km.
const NearbyDelta = 0.01

const (
	mediumAbove = 10
	highAbove   = 20
)

// ReportCounter counts existing reports around a point.
type ReportCounter interface {
	CountNearby(ctx context.Context, lat, lon, delta float64) (int, error)
}

// Classifier computes both risk levels. Keywords are matched as substrings of
// the lower-cased message.
type Classifier struct {
	reports  ReportCounter
	keywords []string
}

func NewClassifier(reports ReportCounter, keywords []string) *Classifier {
	// Keywords get both foldings too, so "FIRE" also matches as "fire".
	seen := make(map[string]struct{}, 2*len(keywords))
	folded := make([]string, 0, 2*len(keywords))
	for _, k := range keywords {
		if k = strings.TrimSpace(k); k == "" {
			continue
		}
		for _, f := range []string{fold(k), strings.ToLower(k)} {
			if _, ok := seen[f]; !ok {
				seen[f] = struct{}{}
				folded = append(folded, f)
			}
		}
	}
	return &Classifier{reports: reports, keywords: folded}
}

// ZoneRisk counts reports in the NearbyDelta box and buckets the count.
func (c *Classifier) ZoneRisk(ctx context.Context, lat, lon float64) (models.ZoneRisk, error) {
	n, err := c.reports.CountNearby(ctx, lat, lon, NearbyDelta)
	if err != nil {
		return "", err
	}
	return ZoneRiskFor(n), nil
}

// ZoneRiskFor maps a nearby report count to a zone risk.
func ZoneRiskFor(n int) models.ZoneRisk {
	switch {
	case n > highAbove:
		return models.ZoneRiskHigh
	case n > mediumAbove:
		return models.ZoneRiskMedium
	default:
		return models.ZoneRiskLow
	}
}

// UserRisk is critical when the message contains any configured keyword.
func (c *Classifier) UserRisk(message string) models.UserRisk {
	// Turkish folding maps "I" to "ı", which would hide English keywords,
	// so the message is checked in both foldings.
	turkish, plain := fold(message), strings.ToLower(message)
	for _, k := range c.keywords {
		if strings.Contains(turkish, k) || strings.Contains(plain, k) {
			return models.UserRiskCritical
		}
	}
	return models.UserRiskMedium
}

// fold lower-cases with Turkish rules. Casers carry state, so one is built per call.
func fold(s string) string {
	return cases.Lower(language.Turkish).String(s)
}
