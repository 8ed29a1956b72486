package evidence

import (
	"regexp"
	"strings"

	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
)

const (
	// strongCaseScore is the minimum score for a case to drive fills.
	strongCaseScore = 0.33
	strongCaseLimit = 5

	// DefaultMinProvenanceScore filters weak references out of the
	// provenance unless the caller overrides it.
	DefaultMinProvenanceScore = 0.30

	provenanceLimit = 10

	// Fill text constraints for the present-illness suggestion.
	minFillLen = 24
	maxFillLen = 300
)

// defaultAlert is suggested when the record carries no alerts and at least
// one case was retrieved. An empty corpus yields no fills of any kind.
const defaultAlert = "Revisar signos de alarma y reevaluar si empeora. (sugerido)"

// fillSuffix marks a present-illness text as evidence-derived.
const fillSuffix = " (sugerido por casos respiratorios similares)"

// dxKeywords are the diagnoses that may be suggested from case titles, in
// priority order.
var dxKeywords = []string{
	"neumonia", "asma", "epoc", "infeccion respiratoria",
	"bronquitis", "covid-19", "influenza",
}

// guidelineMarkers in a case title justify a follow-the-guideline order.
var guidelineMarkers = []string{"guideline", "consensus", "recommendation", "randomized", "trial"}

var sentenceEndRx = regexp.MustCompile(`[.!?]\s+`)

// Suggestions are evidence-derived autocompletion proposals for fields the
// record leaves empty. They are offered, never merged silently.
type Suggestions struct {
	PresentIllness string         `json:"enfermedad_actual,omitempty"`
	Impressions    []string       `json:"impresion_dx,omitempty"`
	Orders         []record.Order `json:"ordenes,omitempty"`
	Alerts         []string       `json:"alertas,omitempty"`
}

// Reference is one provenance entry backing the suggestions.
type Reference struct {
	PMID  string  `json:"pmid"`
	Title string  `json:"title"`
	Score float64 `json:"score"`
	URL   string  `json:"url,omitempty"`
}

// Augmented is the full augmentation result.
type Augmented struct {
	Suggestions Suggestions `json:"sugerencias_autocompletado"`
	Provenance  []Reference `json:"provenance"`
}

// Bias tunes the augmentation.
type Bias struct {
	// PneumoniaOnly suppresses influenza suggestions without strong
	// support. On by default in Augment.
	PneumoniaOnly bool

	// MinScore filters provenance references below it.
	MinScore float64
}

// DefaultBias is what Augment applies when the caller passes nothing.
func DefaultBias() Bias {
	return Bias{PneumoniaOnly: true, MinScore: DefaultMinProvenanceScore}
}

// Augment retrieves up to topK similar cases for the record and proposes
// fills for its empty fields, with provenance filtered by the patient's age
// and the bias's minimum score.
func (r *Retriever) Augment(rec record.Record, templateID string, topK int, bias Bias) Augmented {
	cases := r.Retrieve(rec, templateID, topK)
	out := ProposeFills(rec, cases)

	out.Provenance = filterProvenanceByAge(out.Provenance, rec.Age)
	out.Provenance = filterProvenanceByScore(out.Provenance, bias.MinScore)

	if bias.PneumoniaOnly {
		out.Suggestions = applyPneumoniaBias(out.Suggestions, out.Provenance, rec)
	}
	return out
}

// ProposeFills derives suggestions from the retrieved cases for whichever
// fields the record leaves empty.
func ProposeFills(rec record.Record, cases []Case) Augmented {
	var sug Suggestions

	var strong []Case
	for _, c := range cases {
		if c.Score >= strongCaseScore {
			strong = append(strong, c)
			if len(strong) == strongCaseLimit {
				break
			}
		}
	}

	if rec.PresentIllness.String() == "" && len(strong) > 0 {
		s := firstSentence(strong[0].Abstract)
		if s == "" {
			s = firstSentence(strong[0].Title)
		}
		if len([]rune(s)) > minFillLen {
			sug.PresentIllness = s + fillSuffix
		}
	}

	if len(rec.Impressions) == 0 {
		titles := normText(joinTitles(strong))
		for _, kw := range dxKeywords {
			if strings.Contains(titles, kw) {
				sug.Impressions = append(sug.Impressions, kw)
				if len(sug.Impressions) == 3 {
					break
				}
			}
		}
	}

	if len(rec.Orders) == 0 {
		for _, c := range strong {
			if containsAny(c.Title, guidelineMarkers) {
				sug.Orders = []record.Order{{Detail: "Seguir recomendaciones de guía (ver evidencia vinculada)."}}
				break
			}
		}
	}

	if len(rec.Alerts) == 0 && len(cases) > 0 {
		sug.Alerts = []string{defaultAlert}
	}

	prov := make([]Reference, 0, provenanceLimit)
	for _, c := range cases {
		prov = append(prov, Reference{PMID: c.PMID, Title: c.Title, Score: c.Score, URL: c.URL})
		if len(prov) == provenanceLimit {
			break
		}
	}
	return Augmented{Suggestions: sug, Provenance: prov}
}

// firstSentence returns the first sentence of txt, capped at maxFillLen
// runes.
func firstSentence(txt string) string {
	txt = strings.TrimSpace(txt)
	if txt == "" {
		return ""
	}
	if loc := sentenceEndRx.FindStringIndex(txt); loc != nil {
		txt = txt[:loc[0]+1]
	}
	if r := []rune(txt); len(r) > maxFillLen {
		txt = string(r[:maxFillLen])
	}
	return txt
}

func joinTitles(cases []Case) string {
	parts := make([]string, len(cases))
	for i, c := range cases {
		parts[i] = c.Title
	}
	return strings.Join(parts, " ")
}

// filterProvenanceByAge drops references whose titles target the wrong age
// group for the patient.
func filterProvenanceByAge(prov []Reference, age *int) []Reference {
	if age == nil {
		return prov
	}
	adult := *age >= AdultAgeThreshold
	var out []Reference
	for _, p := range prov {
		title := normText(p.Title)
		if adult && containsAny(title, []string{"pediatric", "children", "child", "infant", "adolescent", "paediatric"}) {
			continue
		}
		if !adult && containsAny(title, []string{"adult", "elderly", "geriatric"}) {
			continue
		}
		out = append(out, p)
	}
	return out
}

func filterProvenanceByScore(prov []Reference, minScore float64) []Reference {
	if minScore <= 0 {
		return prov
	}
	var out []Reference
	for _, p := range prov {
		if p.Score >= minScore {
			out = append(out, p)
		}
	}
	return out
}
