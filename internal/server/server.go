// Package server exposes the scribe pipeline over HTTP: audio ingest,
// record generation, evidence search, knowledge management, encounter
// lifecycle with live transcript streaming, decision support, and FHIR
// export.
package server

import (
	"log/slog"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Escorpio024/scribe-ia-aurora/internal/cds"
	"github.com/Escorpio024/scribe-ia-aurora/internal/encounter"
	"github.com/Escorpio024/scribe-ia-aurora/internal/evidence"
	"github.com/Escorpio024/scribe-ia-aurora/internal/fhir"
	"github.com/Escorpio024/scribe-ia-aurora/internal/health"
	"github.com/Escorpio024/scribe-ia-aurora/internal/ingest"
	"github.com/Escorpio024/scribe-ia-aurora/internal/observe"
	"github.com/Escorpio024/scribe-ia-aurora/internal/pipeline"
	"github.com/Escorpio024/scribe-ia-aurora/pkg/provider/stt"
	"github.com/Escorpio024/scribe-ia-aurora/pkg/pubmed"
)

// Deps collects everything the HTTP surface delegates to. Optional fields
// disable their routes' functionality gracefully: a nil STT provider makes
// /ingest/upload return 503, a nil remote PubMed client makes
// /pubmed/search serve the local index only.
type Deps struct {
	Generator *pipeline.Generator
	Store     encounter.Store
	Corpus    *evidence.Corpus
	Retriever *evidence.Retriever
	CDS       *cds.Engine
	FHIR      *fhir.Builder
	Diarizer  *ingest.Diarizer

	// STT transcribes uploaded recordings. Optional.
	STT stt.Provider

	// Remote searches PubMed online; Index answers from the local snapshot
	// when the remote is absent or down. Both optional.
	Remote *pubmed.Client
	Index  *pubmed.Index

	// KnowledgeDir is where corpus snapshots live. Empty disables the
	// /knowledge routes that touch disk.
	KnowledgeDir string

	// TopK and Bias tune /nlp/augment. Hot-reloadable via SetEvidenceTuning.
	TopK int
	Bias evidence.Bias

	// CORSOrigins lists browser origins allowed to call the API.
	CORSOrigins []string

	Health  []health.Checker
	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// Server is the scribe HTTP API.
type Server struct {
	deps   Deps
	log    *slog.Logger
	tuning *evidenceTuning
}

// New returns a Server with defaults filled in for absent dependencies.
func New(deps Deps) *Server {
	if deps.Generator == nil {
		deps.Generator = pipeline.New()
	}
	if deps.Store == nil {
		deps.Store = encounter.NewMemStore()
	}
	if deps.Corpus == nil {
		deps.Corpus = evidence.NewCorpus()
	}
	if deps.Retriever == nil {
		deps.Retriever = evidence.NewRetriever(deps.Corpus)
	}
	if deps.FHIR == nil {
		deps.FHIR = fhir.NewBuilder()
	}
	if deps.Diarizer == nil {
		deps.Diarizer = ingest.NewDiarizer()
	}
	if deps.TopK <= 0 {
		deps.TopK = 3
	}
	if deps.Bias == (evidence.Bias{}) {
		deps.Bias = evidence.DefaultBias()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	s := &Server{deps: deps, log: deps.Logger}
	s.tuning = newEvidenceTuning(deps.TopK, deps.Bias)
	return s
}

// SetEvidenceTuning replaces the retrieval tuning on a running server. Used
// by the config hot-reload path.
func (s *Server) SetEvidenceTuning(topK int, bias evidence.Bias) {
	s.tuning.set(topK, bias)
}

// Router builds the gin engine with every route registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if s.deps.Metrics != nil {
		r.Use(observe.Middleware(s.deps.Metrics))
	}
	if len(s.deps.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins: s.deps.CORSOrigins,
			AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowHeaders: []string{"Authorization", "Content-Type", "X-Requested-With"},
		}))
	}

	health.New(s.deps.Health...).Register(r)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.POST("/ingest/upload", s.ingestUpload)

	r.POST("/nlp/generate", s.nlpGenerate)
	r.POST("/nlp/augment", s.nlpAugment)

	r.GET("/evidence/search", s.evidenceSearch)
	r.GET("/pubmed/search", s.pubmedSearch)

	r.POST("/knowledge/bootstrap", s.knowledgeBootstrap)
	r.GET("/knowledge/list", s.knowledgeList)
	r.POST("/knowledge/upsert", s.knowledgeUpsert)

	enc := r.Group("/encounters")
	{
		enc.POST("", s.encounterOpen)
		enc.GET("", s.encounterList)
		enc.GET("/:id", s.encounterGet)
		enc.DELETE("/:id", s.encounterDelete)
		enc.POST("/:id/close", s.encounterClose)
		enc.GET("/:id/summary", s.encounterSummary)
		enc.POST("/:id/turns", s.encounterTurn)
		enc.GET("/:id/stream", s.encounterStream)
	}

	r.POST("/cds/suggest", s.cdsSuggest)
	r.POST("/fhir/bundle", s.fhirBundle)

	return r
}

// errorBody is the uniform error response shape.
type errorBody struct {
	Error string `json:"error"`
}

func abortError(c *gin.Context, code int, msg string) {
	c.AbortWithStatusJSON(code, errorBody{Error: msg})
}
