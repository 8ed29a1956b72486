package cds

import (
	"context"
	"errors"

	"github.com/Escorpio024/scribe-ia-aurora/pkg/pubmed"
)

// PubMedSource finds literature references for suggestions, asking the
// remote E-utilities endpoint first and falling back to the local snapshot
// index. Either field may be nil.
type PubMedSource struct {
	Client *pubmed.Client
	Index  *pubmed.Index
}

var _ EvidenceSource = (*PubMedSource)(nil)

// Find implements EvidenceSource.
func (s *PubMedSource) Find(ctx context.Context, query string, k int) ([]Evidence, error) {
	if k <= 0 {
		return nil, nil
	}

	if s.Client != nil {
		res, err := s.Client.Search(ctx, query, k, 0)
		if err == nil {
			return s.fromPMIDs(res.IDs), nil
		}
		if s.Index == nil {
			return nil, err
		}
	}

	if s.Index == nil {
		return nil, errors.New("cds: no evidence source configured")
	}
	rows := s.Index.SearchTerms(query, k)
	out := make([]Evidence, 0, len(rows))
	for _, r := range rows {
		out = append(out, Evidence{PMID: r.PMID, Title: r.Title, Year: r.Year})
	}
	return out, nil
}

// fromPMIDs resolves remote IDs against the local index for titles; IDs the
// index does not know are still returned bare, so the caller can link them.
func (s *PubMedSource) fromPMIDs(pmids []string) []Evidence {
	known := map[string]pubmed.Row{}
	if s.Index != nil {
		for _, r := range s.Index.Lookup(pmids) {
			known[r.PMID] = r
		}
	}
	out := make([]Evidence, 0, len(pmids))
	for _, id := range pmids {
		ev := Evidence{PMID: id}
		if r, ok := known[id]; ok {
			ev.Title = r.Title
			ev.Year = r.Year
		}
		out = append(out, ev)
	}
	return out
}
