package cds_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Escorpio024/scribe-ia-aurora/internal/cds"
	"github.com/Escorpio024/scribe-ia-aurora/pkg/pubmed"
)

const indexJSONL = `{"pmid":"111","title":"Pneumonia management guideline","year":2021}
{"pmid":"222","title":"Asthma exacerbation in children","year":2019}
`

func testIndex(t *testing.T) *pubmed.Index {
	t.Helper()
	idx, err := pubmed.ReadIndex(strings.NewReader(indexJSONL))
	if err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestPubMedSource_LocalIndexOnly(t *testing.T) {
	t.Parallel()
	src := &cds.PubMedSource{Index: testIndex(t)}

	evs, err := src.Find(context.Background(), "pneumonia", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 1 || evs[0].PMID != "111" || evs[0].Year != 2021 {
		t.Errorf("evidence = %+v", evs)
	}
}

func TestPubMedSource_RemoteResolvedAgainstIndex(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"esearchresult":{"count":"2","idlist":["111","999"]}}`))
	}))
	defer srv.Close()

	src := &cds.PubMedSource{
		Client: pubmed.NewClient(pubmed.WithBaseURL(srv.URL)),
		Index:  testIndex(t),
	}

	evs, err := src.Find(context.Background(), "pneumonia", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 2 {
		t.Fatalf("evidence = %+v", evs)
	}
	if evs[0].Title != "Pneumonia management guideline" {
		t.Errorf("known PMID should resolve a title: %+v", evs[0])
	}
	if evs[1].PMID != "999" || evs[1].Title != "" {
		t.Errorf("unknown PMID should stay bare: %+v", evs[1])
	}
}

func TestPubMedSource_RemoteDownFallsBackToIndex(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	src := &cds.PubMedSource{
		Client: pubmed.NewClient(pubmed.WithBaseURL(srv.URL)),
		Index:  testIndex(t),
	}

	evs, err := src.Find(context.Background(), "asthma", 5)
	if err != nil {
		t.Fatal(err)
	}
	if len(evs) != 1 || evs[0].PMID != "222" {
		t.Errorf("evidence = %+v", evs)
	}
}

func TestPubMedSource_NothingConfigured(t *testing.T) {
	t.Parallel()
	src := &cds.PubMedSource{}
	if _, err := src.Find(context.Background(), "anything", 3); err == nil {
		t.Error("expected an error with no client and no index")
	}
}
