package evidence

import "math"

// Scorer ranks a tokenized document against a tokenized query given the
// corpus document frequencies.
type Scorer interface {
	Score(query, doc []string, df map[string]int, n int) float64
}

// BM25 is an Okapi BM25 scorer with a fixed average document length, which
// keeps ranking stable as the corpus grows.
type BM25 struct {
	K1    float64
	B     float64
	AvgDL float64
}

// NewBM25 returns a scorer with the standard parameters.
func NewBM25() BM25 {
	return BM25{K1: 1.2, B: 0.75, AvgDL: 200}
}

var _ Scorer = BM25{}

// Score implements Scorer.
func (s BM25) Score(query, doc []string, df map[string]int, n int) float64 {
	if len(query) == 0 || len(doc) == 0 {
		return 0
	}
	tf := make(map[string]int, len(doc))
	for _, t := range doc {
		tf[t]++
	}
	dl := float64(len(doc))

	var score float64
	seen := make(map[string]struct{}, len(query))
	for _, t := range query {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		f := float64(tf[t])
		if f == 0 {
			continue
		}
		d := df[t]
		if d == 0 {
			d = 1
		}
		idf := math.Log(1 + (float64(n)-float64(d)+0.5)/(float64(d)+0.5))
		score += idf * (f * (s.K1 + 1)) / (f + s.K1*(1-s.B+s.B*dl/s.AvgDL))
	}
	return score
}
