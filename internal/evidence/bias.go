package evidence

import (
	"strings"

	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
)

// strictInfluenzaFactor: an influenza title only counts as strong evidence
// when its score reaches this fraction of the best score.
const strictInfluenzaFactor = 0.75

// allowInfluenza decides whether an influenza diagnosis may be suggested.
// It is allowed only when the clinical text itself mentions influenza or
// gripe, or when a top-5 reference titled influenza scores close to the best
// reference.
func allowInfluenza(rec record.Record, provenance []Reference) bool {
	text := strings.Join([]string{
		rec.ChiefComplaint,
		rec.PresentIllness.String(),
		strings.Join(rec.Impressions, " "),
	}, " ")
	if containsAny(text, []string{"influenza", "gripe"}) {
		return true
	}
	if len(provenance) == 0 {
		return false
	}

	var best float64
	for _, p := range provenance {
		if p.Score > best {
			best = p.Score
		}
	}
	threshold := best * strictInfluenzaFactor

	top := provenance
	if len(top) > 5 {
		top = top[:5]
	}
	for _, p := range top {
		if strings.Contains(normText(p.Title), "influenza") && p.Score >= threshold {
			return true
		}
	}
	return false
}

// applyPneumoniaBias removes influenza from the suggested diagnoses unless
// allowInfluenza admits it, keeping community acquired pneumonia the default
// reading of respiratory evidence.
func applyPneumoniaBias(sug Suggestions, provenance []Reference, rec record.Record) Suggestions {
	if len(sug.Impressions) == 0 || allowInfluenza(rec, provenance) {
		return sug
	}
	var kept []string
	for _, dx := range sug.Impressions {
		if normText(dx) == "influenza" {
			continue
		}
		kept = append(kept, dx)
	}
	sug.Impressions = kept
	return sug
}
