// Package pubmed talks to the NCBI E-utilities search endpoint and serves a
// local JSONL snapshot of article metadata when the network is unavailable.
package pubmed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// DefaultBaseURL is the NCBI E-utilities endpoint.
const DefaultBaseURL = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"

const defaultTimeout = 30 * time.Second

// Client queries the PubMed esearch API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL points the client at a different endpoint, mainly for tests.
func WithBaseURL(base string) ClientOption {
	return func(c *Client) { c.baseURL = base }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient returns a PubMed client with a 30 second timeout.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SearchResult is one esearch page.
type SearchResult struct {
	IDs      []string `json:"ids"`
	Count    int      `json:"count"`
	Query    string   `json:"q"`
	RetStart int      `json:"retstart"`
	RetMax   int      `json:"retmax"`
}

// esearchEnvelope mirrors the wire format. NCBI encodes count as a string.
type esearchEnvelope struct {
	Result struct {
		Count  json.Number `json:"count"`
		IDList []string    `json:"idlist"`
	} `json:"esearchresult"`
}

// Search runs an esearch query and returns the matching IDs and total count.
func (c *Client) Search(ctx context.Context, query string, retmax, retstart int) (*SearchResult, error) {
	q := url.Values{
		"db":       {"pubmed"},
		"term":     {query},
		"retmode":  {"json"},
		"retmax":   {fmt.Sprint(retmax)},
		"retstart": {fmt.Sprint(retstart)},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/esearch.fcgi?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build esearch request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("esearch request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("esearch request: unexpected status %s", resp.Status)
	}

	var env esearchEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return nil, fmt.Errorf("decode esearch response: %w", err)
	}
	count, _ := env.Result.Count.Int64()
	ids := env.Result.IDList
	if ids == nil {
		ids = []string{}
	}
	return &SearchResult{
		IDs:      ids,
		Count:    int(count),
		Query:    query,
		RetStart: retstart,
		RetMax:   retmax,
	}, nil
}

// Count reports the total number of matches for a query. It satisfies the
// router's evidence count interface.
func (c *Client) Count(ctx context.Context, query string) (int, error) {
	res, err := c.Search(ctx, query, 0, 0)
	if err != nil {
		return 0, err
	}
	return res.Count, nil
}
