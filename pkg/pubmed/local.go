package pubmed

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Row is one locally indexed article.
type Row struct {
	PMID     string `json:"pmid"`
	Title    string `json:"title"`
	Abstract string `json:"abstract,omitempty"`
	Year     int    `json:"year,omitempty"`
	URL      string `json:"url,omitempty"`
}

// Index is a local PMID-keyed snapshot of article metadata, loaded once from
// a JSONL export. It backs searches when the remote API is unreachable.
type Index struct {
	rows  map[string]Row
	order []string
}

// LoadIndex reads a JSONL snapshot. A missing file yields an empty index.
func LoadIndex(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Index{rows: map[string]Row{}}, nil
		}
		return nil, fmt.Errorf("open local index: %w", err)
	}
	defer f.Close()
	return ReadIndex(f)
}

// ReadIndex decodes JSONL rows from r, tolerating the field spellings of
// several export formats. Malformed lines are skipped.
func ReadIndex(r io.Reader) (*Index, error) {
	idx := &Index{rows: map[string]Row{}}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var raw map[string]any
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			continue
		}
		row := normalizeRow(raw)
		if row.PMID == "" {
			continue
		}
		if _, dup := idx.rows[row.PMID]; !dup {
			idx.order = append(idx.order, row.PMID)
		}
		idx.rows[row.PMID] = row
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read local index: %w", err)
	}
	return idx, nil
}

// normalizeRow maps the alternate field spellings used by different exports
// onto a single shape.
func normalizeRow(raw map[string]any) Row {
	pmid := strings.TrimSpace(pickString(raw, "pmid", "PMID"))
	row := Row{
		PMID:     pmid,
		Title:    strings.TrimSpace(pickString(raw, "title", "TI", "article_title")),
		Abstract: strings.TrimSpace(pickString(raw, "abstract", "AB", "abstract_text")),
		Year:     pickYear(raw, "year", "DP", "pub_year"),
		URL:      pickString(raw, "url"),
	}
	if row.URL == "" && pmid != "" {
		row.URL = fmt.Sprintf("https://pubmed.ncbi.nlm.nih.gov/%s/", pmid)
	}
	return row
}

func pickString(raw map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := raw[k]; ok {
			switch t := v.(type) {
			case string:
				if t != "" {
					return t
				}
			case float64:
				return strconv.FormatFloat(t, 'f', -1, 64)
			}
		}
	}
	return ""
}

// pickYear accepts numeric years or date strings whose first four characters
// are the year.
func pickYear(raw map[string]any, keys ...string) int {
	for _, k := range keys {
		v, ok := raw[k]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case float64:
			return int(t)
		case string:
			if len(t) >= 4 {
				if y, err := strconv.Atoi(t[:4]); err == nil {
					return y
				}
			}
		}
	}
	return 0
}

// Len reports the number of indexed articles.
func (i *Index) Len() int { return len(i.rows) }

// Lookup returns the rows for the given PMIDs, in argument order, skipping
// unknown IDs.
func (i *Index) Lookup(pmids []string) []Row {
	var out []Row
	for _, p := range pmids {
		if r, ok := i.rows[p]; ok {
			out = append(out, r)
		}
	}
	return out
}

// SearchTerms ranks articles by how often the query occurs in their title
// and abstract, case-folded, returning up to limit rows.
func (i *Index) SearchTerms(query string, limit int) []Row {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" || len(i.rows) == 0 {
		return nil
	}
	type hit struct {
		score int
		row   Row
	}
	var hits []hit
	for _, pmid := range i.order {
		r := i.rows[pmid]
		hay := strings.ToLower(r.Title) + " " + strings.ToLower(r.Abstract)
		if score := strings.Count(hay, q); score > 0 {
			hits = append(hits, hit{score: score, row: r})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	out := make([]Row, len(hits))
	for n, h := range hits {
		out[n] = h.row
	}
	return out
}
