package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Escorpio024/scribe-ia-aurora/internal/evidence"
	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
	"github.com/Escorpio024/scribe-ia-aurora/pkg/pubmed"
)

// evidenceSearch ranks the local corpus against a free-text query.
func (s *Server) evidenceSearch(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		abortError(c, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	k := intQuery(c, "k", 0)
	if k <= 0 {
		k, _ = s.tuning.get()
	}

	rec := record.Record{ChiefComplaint: q}
	cases := s.deps.Retriever.Retrieve(rec, c.Query("template"), k)
	if cases == nil {
		cases = []evidence.Case{}
	}
	c.JSON(http.StatusOK, gin.H{"query": q, "cases": cases})
}

// pubmedSearch asks the remote E-utilities endpoint, falling back to the
// local snapshot index when the remote is missing or down.
func (s *Server) pubmedSearch(c *gin.Context) {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		abortError(c, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}
	retmax := intQuery(c, "retmax", 10)

	if s.deps.Remote != nil {
		res, err := s.deps.Remote.Search(c.Request.Context(), q, retmax, 0)
		if err == nil {
			rows := []pubmed.Row{}
			if s.deps.Index != nil {
				rows = s.deps.Index.Lookup(res.IDs)
			}
			c.JSON(http.StatusOK, gin.H{
				"source": "remote",
				"count":  res.Count,
				"pmids":  res.IDs,
				"rows":   rows,
			})
			return
		}
		s.log.WarnContext(c.Request.Context(), "remote pubmed search failed, serving local index", "err", err)
	}

	if s.deps.Index == nil {
		abortError(c, http.StatusServiceUnavailable, "no evidence source available")
		return
	}
	rows := s.deps.Index.SearchTerms(q, retmax)
	if rows == nil {
		rows = []pubmed.Row{}
	}
	c.JSON(http.StatusOK, gin.H{
		"source": "local",
		"count":  len(rows),
		"rows":   rows,
	})
}

type bootstrapRequest struct {
	Query string `json:"query"`
	Count int    `json:"count"`
}

// knowledgeBootstrap accounts for the snapshot under the knowledge dir
// against the requested article total.
func (s *Server) knowledgeBootstrap(c *gin.Context) {
	if s.deps.KnowledgeDir == "" {
		abortError(c, http.StatusServiceUnavailable, "no knowledge directory configured")
		return
	}
	var req bootstrapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if req.Count <= 0 {
		req.Count = 100
	}

	res, err := pubmed.Bootstrap(req.Query, req.Count, s.deps.KnowledgeDir)
	if err != nil {
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}
	c.JSON(http.StatusOK, res)
}

type knowledgeFile struct {
	Name  string `json:"name"`
	Bytes int64  `json:"bytes"`
}

func (s *Server) knowledgeList(c *gin.Context) {
	if s.deps.KnowledgeDir == "" {
		abortError(c, http.StatusServiceUnavailable, "no knowledge directory configured")
		return
	}
	entries, err := os.ReadDir(s.deps.KnowledgeDir)
	if err != nil {
		if os.IsNotExist(err) {
			c.JSON(http.StatusOK, gin.H{"files": []knowledgeFile{}, "corpus_docs": s.deps.Corpus.Len()})
			return
		}
		abortError(c, http.StatusInternalServerError, err.Error())
		return
	}

	files := []knowledgeFile{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		files = append(files, knowledgeFile{Name: e.Name(), Bytes: info.Size()})
	}
	c.JSON(http.StatusOK, gin.H{"files": files, "corpus_docs": s.deps.Corpus.Len()})
}

// knowledgeUpsert adds or replaces one article in the corpus and rewrites
// the snapshot so the addition survives a restart.
func (s *Server) knowledgeUpsert(c *gin.Context) {
	var doc evidence.Doc
	if err := c.ShouldBindJSON(&doc); err != nil {
		abortError(c, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if doc.PMID == "" || doc.Title == "" {
		abortError(c, http.StatusBadRequest, "pmid and title are required")
		return
	}

	s.deps.Corpus.Upsert(doc)

	if s.deps.KnowledgeDir != "" {
		if err := s.exportSnapshot(); err != nil {
			s.log.ErrorContext(c.Request.Context(), "snapshot export failed", "err", err)
			abortError(c, http.StatusInternalServerError, "article stored in memory but snapshot write failed")
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"pmid": doc.PMID, "corpus_docs": s.deps.Corpus.Len()})
}

// exportSnapshot writes the corpus to the snapshot file via a temp file and
// rename so a crash never truncates the previous snapshot.
func (s *Server) exportSnapshot() error {
	path := filepath.Join(s.deps.KnowledgeDir, pubmed.SnapshotFile)
	tmp, err := os.CreateTemp(s.deps.KnowledgeDir, "snapshot-*.jsonl")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := s.deps.Corpus.Export(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func intQuery(c *gin.Context, name string, def int) int {
	v := c.Query(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}
