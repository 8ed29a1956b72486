package evidence

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
)

const (
	// prefilterScore discards near-zero matches before ranking.
	prefilterScore = 0.05

	// Minimum accepted score, stricter for respiratory templates where
	// off-topic evidence is particularly misleading.
	minScoreRespiratory = 0.33
	minScoreDefault     = 0.2

	// Root-hit boost: each respiratory root found in the article adds 15%,
	// capped at +50%.
	rootBoostStep = 0.15
	rootBoostMax  = 0.5
)

// querySeeds bias the retrieval query toward each template's core topic.
// The respiratory list favors community acquired pneumonia and lists viral
// etiologies last.
var querySeeds = map[string][]string{
	"respiratoria_aguda": {
		"community acquired pneumonia", "pneumonia", "cap",
		"respiratory infection", "bronchitis", "bronchi", "tos", "disnea",
		"saturacion", "hipoxemia", "pulmon", "respiratoria", "crepitantes",
		"rales", "auscultacion", "o2",
		"covid", "influenza", "rsv",
	},
	"dolor_toracico": {
		"chest pain", "dolor toracico", "infarto", "acs", "troponina",
		"ecg", "timi", "heart score",
	},
	"consulta_general": {
		"fiebre", "dolor", "cefalea", "gastroenteritis", "vomito",
		"diarrea", "resfriado",
	},
}

// requiredRoots lists the word roots of which at least one must appear in an
// article for it to be considered at all under the given template.
var requiredRoots = map[string][]string{
	"respiratoria_aguda": {"neumon", "bronqui", "respir", "tos", "disnea", "cap", "pulmon", "o2", "satur"},
}

// negativeDomains marks specialties whose articles are dropped unless the
// query itself mentions them.
var negativeDomains = []string{
	"dementia", "alzheimer", "bariatric", "dermatology", "psoriasis", "atopic",
	"ophthalmology", "glaucoma", "orthopedic", "arthro", "urology", "prostate",
	"erectile", "psychiatry", "obsessive", "trichotillomania",
	"toxic oil", "toxic-oil", "gastrojejunostomy", "bypass", "biliary",
	"colorectal", "breast cancer", "prostate cancer",
}

// Case is a retrieved article with its relevance score.
type Case struct {
	PMID     string  `json:"pmid"`
	Title    string  `json:"title"`
	Year     int     `json:"year,omitempty"`
	Abstract string  `json:"abstract,omitempty"`
	Score    float64 `json:"score"`
	URL      string  `json:"url,omitempty"`
}

// Retriever ranks corpus articles against a clinical record.
type Retriever struct {
	corpus *Corpus
	scorer Scorer
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithScorer replaces the default BM25 scorer.
func WithScorer(s Scorer) Option {
	return func(r *Retriever) { r.scorer = s }
}

// NewRetriever returns a retriever over the corpus.
func NewRetriever(corpus *Corpus, opts ...Option) *Retriever {
	r := &Retriever{corpus: corpus, scorer: NewBM25()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// BuildQuery assembles the retrieval query from the record's narrative
// fields, vitals, and orders, extended with the template's seed terms.
func BuildQuery(rec record.Record, templateID string) string {
	parts := []string{
		rec.ChiefComplaint,
		rec.PresentIllness.String(),
		strings.Join(rec.Impressions, " "),
		rec.Exam.BP, rec.Exam.Temp, rec.Exam.HR, rec.Exam.RR, rec.Exam.SpO2,
	}
	for _, o := range rec.Orders {
		parts = append(parts, o.Detail)
	}
	parts = append(parts, querySeeds[templateID]...)
	return strings.TrimSpace(strings.Join(parts, " "))
}

// Retrieve returns up to k cases relevant to the record under the template,
// best first. An empty corpus or an empty query yields no cases, never an
// error.
func (r *Retriever) Retrieve(rec record.Record, templateID string, k int) []Case {
	query := BuildQuery(rec, templateID)
	qtoks := tokenize(query)
	if len(qtoks) == 0 {
		return nil
	}

	var rootRx *regexp.Regexp
	if roots := requiredRoots[templateID]; len(roots) > 0 {
		escaped := make([]string, len(roots))
		for i, root := range roots {
			escaped[i] = regexp.QuoteMeta(root)
		}
		rootRx = regexp.MustCompile(strings.Join(escaped, "|"))
	}

	queryNorm := normText(query)

	type scoredDoc struct {
		toks     []string
		doc      Doc
		rootHits int
	}
	var docs []scoredDoc
	df := make(map[string]int)

	for _, d := range r.corpus.Docs() {
		raw := normText(d.text())

		if !ageAdmits(rec.Age, d.Title) {
			continue
		}

		rootHits := 0
		if rootRx != nil {
			rootHits = len(rootRx.FindAllString(raw, -1))
			if rootHits == 0 {
				continue
			}
		}

		if offDomain(raw, queryNorm) {
			continue
		}

		toks := tokenize(raw)
		if len(toks) == 0 {
			continue
		}
		docs = append(docs, scoredDoc{toks: toks, doc: d, rootHits: rootHits})
		seen := make(map[string]struct{}, len(toks))
		for _, t := range toks {
			if _, dup := seen[t]; dup {
				continue
			}
			seen[t] = struct{}{}
			df[t]++
		}
	}
	if len(docs) == 0 {
		return nil
	}

	n := len(docs)
	type ranked struct {
		score float64
		doc   Doc
	}
	var scored []ranked
	for _, sd := range docs {
		s := r.scorer.Score(qtoks, sd.toks, df, n)
		if sd.rootHits > 0 {
			boost := rootBoostStep * float64(sd.rootHits)
			if boost > rootBoostMax {
				boost = rootBoostMax
			}
			s *= 1 + boost
		}
		if s > prefilterScore {
			scored = append(scored, ranked{score: s, doc: sd.doc})
		}
	}
	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	minScore := minScoreDefault
	if strings.HasPrefix(templateID, "respiratoria") {
		minScore = minScoreRespiratory
	}

	var out []Case
	for _, sc := range scored {
		if sc.score < minScore {
			continue
		}
		out = append(out, Case{
			PMID:     sc.doc.PMID,
			Title:    sc.doc.Title,
			Year:     sc.doc.Year,
			Abstract: sc.doc.Abstract,
			Score:    sc.score,
			URL:      fmt.Sprintf("https://pubmed.ncbi.nlm.nih.gov/%s/", sc.doc.PMID),
		})
		if len(out) >= k {
			break
		}
	}
	return out
}

// ageAdmits gates articles by the patient's age: adults never see pediatric
// titles and children never see adult or geriatric ones. An unknown age
// admits everything.
func ageAdmits(age *int, title string) bool {
	if age == nil {
		return true
	}
	t := strings.ToLower(title)
	if *age >= AdultAgeThreshold {
		return !strings.Contains(t, "pediatric") &&
			!strings.Contains(t, "child") &&
			!strings.Contains(t, "children")
	}
	return !strings.Contains(t, "adult") && !strings.Contains(t, "elderly")
}

// offDomain reports whether the article belongs to an unrelated specialty
// the query does not itself mention.
func offDomain(docNorm, queryNorm string) bool {
	for _, nd := range negativeDomains {
		if strings.Contains(docNorm, nd) && !strings.Contains(queryNorm, nd) {
			return true
		}
	}
	return false
}
