// Command scribe runs the clinical scribe API server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/Escorpio024/scribe-ia-aurora/internal/cds"
	"github.com/Escorpio024/scribe-ia-aurora/internal/config"
	"github.com/Escorpio024/scribe-ia-aurora/internal/encounter"
	encounterpg "github.com/Escorpio024/scribe-ia-aurora/internal/encounter/postgres"
	"github.com/Escorpio024/scribe-ia-aurora/internal/evidence"
	"github.com/Escorpio024/scribe-ia-aurora/internal/health"
	"github.com/Escorpio024/scribe-ia-aurora/internal/ingest"
	"github.com/Escorpio024/scribe-ia-aurora/internal/observe"
	"github.com/Escorpio024/scribe-ia-aurora/internal/pipeline"
	"github.com/Escorpio024/scribe-ia-aurora/internal/resilience"
	"github.com/Escorpio024/scribe-ia-aurora/internal/router"
	"github.com/Escorpio024/scribe-ia-aurora/internal/server"
	"github.com/Escorpio024/scribe-ia-aurora/pkg/provider/llm"
	"github.com/Escorpio024/scribe-ia-aurora/pkg/provider/llm/anyllm"
	"github.com/Escorpio024/scribe-ia-aurora/pkg/provider/llm/openai"
	"github.com/Escorpio024/scribe-ia-aurora/pkg/provider/stt"
	"github.com/Escorpio024/scribe-ia-aurora/pkg/provider/stt/whisper"
	"github.com/Escorpio024/scribe-ia-aurora/pkg/pubmed"
)

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "scribe: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "scribe: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	levelVar := new(slog.LevelVar)
	levelVar.Set(slogLevel(cfg.Server.LogLevel))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	slog.SetDefault(logger)

	slog.Info("scribe starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "scribe"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg, cfg)

	llmProvider, err := buildLLM(cfg, reg)
	if err != nil {
		slog.Error("failed to build LLM provider", "err", err)
		return 1
	}

	var sttProvider stt.Provider
	if cfg.Providers.STT.Name != "" {
		sttProvider, err = reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			slog.Error("failed to build STT provider", "err", err,
				"name", cfg.Providers.STT.Name)
			return 1
		}
		slog.Info("provider created", "kind", "stt", "name", cfg.Providers.STT.Name)
	}

	// ── Evidence sources ──────────────────────────────────────────────────────
	var remote *pubmed.Client
	var clientOpts []pubmed.ClientOption
	if cfg.Knowledge.PubMedBaseURL != "" {
		clientOpts = append(clientOpts, pubmed.WithBaseURL(cfg.Knowledge.PubMedBaseURL))
	}
	if cfg.Knowledge.PubMedTimeoutSeconds > 0 {
		clientOpts = append(clientOpts, pubmed.WithHTTPClient(&http.Client{
			Timeout: time.Duration(cfg.Knowledge.PubMedTimeoutSeconds) * time.Second,
		}))
	}
	remote = pubmed.NewClient(clientOpts...)

	corpus := evidence.NewCorpus()
	var index *pubmed.Index
	if cfg.Knowledge.Dir != "" {
		snapshot := cfg.Knowledge.Snapshot
		if snapshot == "" {
			snapshot = pubmed.SnapshotFile
		}
		path := filepath.Join(cfg.Knowledge.Dir, snapshot)
		if corpus, err = evidence.LoadCorpus(path); err != nil {
			slog.Error("failed to load corpus snapshot", "path", path, "err", err)
			return 1
		}
		if index, err = pubmed.LoadIndex(path); err != nil {
			slog.Error("failed to load local index", "path", path, "err", err)
			return 1
		}
		slog.Info("knowledge snapshot loaded", "path", path, "docs", corpus.Len())

		if cfg.Knowledge.BootstrapQuery != "" {
			res, err := pubmed.Bootstrap(cfg.Knowledge.BootstrapQuery, cfg.Knowledge.BootstrapCount, cfg.Knowledge.Dir)
			if err != nil {
				slog.Warn("knowledge bootstrap failed", "err", err)
			} else {
				slog.Info("knowledge bootstrap", "query", res.Query, "have", res.Count, "requested", res.Requested)
			}
		}
	}
	retriever := evidence.NewRetriever(corpus)

	// ── Router ────────────────────────────────────────────────────────────────
	var routerOpts []router.Option
	if !cfg.Evidence.DisableRouterBoost {
		routerOpts = append(routerOpts, router.WithCountSource(remote))
		if cfg.Evidence.MaxBoost > 0 {
			routerOpts = append(routerOpts, router.WithMaxBoost(cfg.Evidence.MaxBoost))
		}
	}
	rtr := router.New(routerOpts...)

	// ── Encounter store ───────────────────────────────────────────────────────
	var store encounter.Store = encounter.NewMemStore()
	checkers := []health.Checker{health.Corpus(corpus)}
	if cfg.Store.PostgresDSN != "" {
		pg, err := encounterpg.NewStore(ctx, cfg.Store.PostgresDSN)
		if err != nil {
			slog.Error("failed to connect encounter store", "err", err)
			return 1
		}
		defer pg.Close()
		store = pg
		checkers = append(checkers, health.Database(pg.Pool()))
		slog.Info("encounter store connected", "backend", "postgres")
	} else {
		slog.Info("encounter store in memory only")
	}

	// ── Pipeline ──────────────────────────────────────────────────────────────
	bias := evidence.DefaultBias()
	bias.PneumoniaOnly = !cfg.Evidence.DisablePneumoniaBias
	if cfg.Evidence.MinProvenanceScore > 0 {
		bias.MinScore = cfg.Evidence.MinProvenanceScore
	}
	topK := cfg.Evidence.TopK
	if topK <= 0 {
		topK = 3
	}

	genOpts := []pipeline.Option{
		pipeline.WithRouter(rtr),
		pipeline.WithAugmenter(retriever),
		pipeline.WithTopK(topK),
		pipeline.WithBias(bias),
		pipeline.WithMetrics(metrics),
	}
	if llmProvider != nil {
		genOpts = append(genOpts, pipeline.WithLLM(llmProvider))
	}
	generator := pipeline.New(genOpts...)

	// ── Decision support ──────────────────────────────────────────────────────
	cdsOpts := []cds.Option{
		cds.WithEvidenceSource(&cds.PubMedSource{Client: remote, Index: index}),
	}
	if llmProvider != nil {
		cdsOpts = append(cdsOpts, cds.WithReranker(llmProvider))
	}
	engine := cds.NewEngine(cdsOpts...)

	// ── HTTP server ───────────────────────────────────────────────────────────
	diarizer := ingest.NewDiarizer(diarizerOptions(cfg.ASR)...)
	api := server.New(server.Deps{
		Generator:    generator,
		Store:        store,
		Corpus:       corpus,
		Retriever:    retriever,
		CDS:          engine,
		Diarizer:     diarizer,
		STT:          sttProvider,
		Remote:       remote,
		Index:        index,
		KnowledgeDir: cfg.Knowledge.Dir,
		TopK:         topK,
		Bias:         bias,
		CORSOrigins:  cfg.Server.CORSOrigins,
		Health:       checkers,
		Metrics:      metrics,
	})

	listenAddr := cfg.Server.ListenAddr
	if listenAddr == "" {
		listenAddr = ":8080"
	}
	httpSrv := &http.Server{
		Addr:              listenAddr,
		Handler:           api.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		diff := config.Diff(old, new)
		if !diff.Any() {
			return
		}
		if diff.LogLevelChanged {
			levelVar.Set(slogLevel(diff.NewLogLevel))
			slog.Info("log level changed", "level", diff.NewLogLevel)
		}
		if diff.EvidenceChanged {
			ev := diff.NewEvidence
			newBias := evidence.DefaultBias()
			newBias.PneumoniaOnly = !ev.DisablePneumoniaBias
			if ev.MinProvenanceScore > 0 {
				newBias.MinScore = ev.MinProvenanceScore
			}
			api.SetEvidenceTuning(ev.TopK, newBias)
			slog.Info("evidence tuning changed", "top_k", ev.TopK, "min_score", newBias.MinScore)
		}
	})
	if err != nil {
		slog.Warn("config watcher disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	// ── Serve ─────────────────────────────────────────────────────────────────
	errCh := make(chan error, 1)
	go func() {
		var err error
		if cfg.Server.TLS != nil {
			err = httpSrv.ListenAndServeTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	slog.Info("server ready", "listen_addr", listenAddr)

	select {
	case err := <-errCh:
		slog.Error("server error", "err", err)
		return 1
	case <-ctx.Done():
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the provider factories that ship with the
// scribe into reg.
func registerBuiltinProviders(reg *config.Registry, cfg *config.Config) {
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []openai.Option
		if entry.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(entry.BaseURL))
		}
		return openai.New(entry.APIKey, entry.Model, opts...)
	})

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	})

	reg.RegisterLLM("anyllm", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.APIKey != "" {
			opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		backend := optString(entry.Options, "provider")
		if backend == "" {
			backend = "openai"
		}
		return anyllm.New(backend, entry.Model, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		lang := cfg.ASR.Language
		if lang == "" {
			lang = "es"
		}
		return whisper.New(entry.Model, whisper.WithLanguage(lang))
	})
}

// buildLLM creates the primary drafting model and, when configured, wraps it
// with the circuit-broken fallback chain. A nil return with nil error means
// no LLM is configured and the pipeline runs on rule extraction alone.
func buildLLM(cfg *config.Config, reg *config.Registry) (llm.Provider, error) {
	if cfg.Providers.LLM.Name == "" {
		return nil, nil
	}
	primary, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name, "model", cfg.Providers.LLM.Model)

	if cfg.Providers.LLMFallback.Name == "" {
		return primary, nil
	}
	secondary, err := reg.CreateLLM(cfg.Providers.LLMFallback)
	if err != nil {
		return nil, fmt.Errorf("create llm fallback %q: %w", cfg.Providers.LLMFallback.Name, err)
	}
	slog.Info("provider created", "kind", "llm-fallback", "name", cfg.Providers.LLMFallback.Name, "model", cfg.Providers.LLMFallback.Model)

	group := resilience.NewLLMFallback(primary, cfg.Providers.LLM.Name, resilience.FallbackConfig{})
	group.AddFallback(cfg.Providers.LLMFallback.Name, secondary)
	return group, nil
}

// diarizerOptions maps the ASR config block onto diarizer options.
func diarizerOptions(asr config.ASRConfig) []ingest.Option {
	var opts []ingest.Option
	if asr.GapSeconds > 0 {
		opts = append(opts, ingest.WithGapSeconds(asr.GapSeconds))
	}
	if asr.MinChars > 0 {
		opts = append(opts, ingest.WithMinChars(asr.MinChars))
	}
	if asr.MinConfidence > 0 {
		opts = append(opts, ingest.WithMinConfidence(asr.MinConfidence))
	}
	return opts
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
