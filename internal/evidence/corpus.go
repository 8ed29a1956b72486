// Package evidence retrieves literature references similar to a clinical
// record and turns them into autocompletion suggestions.
//
// The corpus is a local JSONL snapshot of article metadata. Retrieval is
// BM25 over accent-stripped tokens with hard relevance filters applied before
// scoring: the patient's age gates pediatric vs adult articles, respiratory
// templates require at least one respiratory root in the article, and
// articles from unrelated specialties are dropped outright. The ranking is
// deterministic for a given corpus and record.
package evidence

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
)

// AdultAgeThreshold is the age, in years, from which a patient is treated as
// an adult when gating evidence.
const AdultAgeThreshold = 18

// Doc is one article in the local corpus.
type Doc struct {
	PMID     string   `json:"pmid"`
	Title    string   `json:"title"`
	Abstract string   `json:"abstract,omitempty"`
	Year     int      `json:"year,omitempty"`
	MeSH     []string `json:"mesh,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

// text joins every searchable field of the article.
func (d Doc) text() string {
	parts := []string{d.Title, d.Abstract}
	parts = append(parts, d.MeSH...)
	parts = append(parts, d.Keywords...)
	return strings.Join(parts, " ")
}

// Corpus is an in-memory article set, deduplicated by PMID. Safe for
// concurrent use.
type Corpus struct {
	mu   sync.RWMutex
	docs []Doc
	ids  map[string]int
}

// NewCorpus returns an empty corpus.
func NewCorpus() *Corpus {
	return &Corpus{ids: make(map[string]int)}
}

// LoadCorpus reads a JSONL corpus file. A missing file yields an empty
// corpus, not an error, so a fresh deployment can start before any
// bootstrap has run.
func LoadCorpus(path string) (*Corpus, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewCorpus(), nil
		}
		return nil, fmt.Errorf("open corpus: %w", err)
	}
	defer f.Close()
	return ReadCorpus(f)
}

// ReadCorpus decodes JSONL article records from r. Malformed lines are
// skipped; the corpus format tolerates partial writes from interrupted
// bootstraps.
func ReadCorpus(r io.Reader) (*Corpus, error) {
	c := NewCorpus()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var d Doc
		if err := json.Unmarshal([]byte(line), &d); err != nil {
			continue
		}
		c.Upsert(d)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	return c, nil
}

// Upsert adds the article or replaces the existing one with the same PMID.
// Articles without a PMID are ignored.
func (c *Corpus) Upsert(d Doc) {
	if d.PMID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if i, ok := c.ids[d.PMID]; ok {
		c.docs[i] = d
		return
	}
	c.ids[d.PMID] = len(c.docs)
	c.docs = append(c.docs, d)
}

// Len reports the number of articles.
func (c *Corpus) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// Docs returns a snapshot of the articles in insertion order.
func (c *Corpus) Docs() []Doc {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Doc, len(c.docs))
	copy(out, c.docs)
	return out
}

// Export writes the corpus as JSONL to w.
func (c *Corpus) Export(w io.Writer) error {
	enc := json.NewEncoder(w)
	for _, d := range c.Docs() {
		if err := enc.Encode(d); err != nil {
			return fmt.Errorf("encode corpus doc %s: %w", d.PMID, err)
		}
	}
	return nil
}
