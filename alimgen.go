// Package alimgen assembles the KakaoTalk AlimTalk template generation
// service: policy ingestion, hybrid retrieval, LLM-backed analysis and
// generation, and compliance checking behind one facade.
package alimgen

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/space-cap/alimgen/analyzer"
	"github.com/space-cap/alimgen/cache"
	"github.com/space-cap/alimgen/compliance"
	"github.com/space-cap/alimgen/config"
	"github.com/space-cap/alimgen/embedder"
	"github.com/space-cap/alimgen/generator"
	"github.com/space-cap/alimgen/ingest"
	"github.com/space-cap/alimgen/llm"
	"github.com/space-cap/alimgen/metrics"
	"github.com/space-cap/alimgen/model"
	"github.com/space-cap/alimgen/retrieval"
	"github.com/space-cap/alimgen/vector"
	"github.com/space-cap/alimgen/workflow"
)

// policyCollection names the vector collection holding the corpus.
const policyCollection = "alimtalk_policies"

// Indexing batch shape.
const (
	indexBatchSize   = 32
	indexConcurrency = 4
)

// Service is the assembled pipeline. Construct with New, then optionally
// Index to (re)build the dense index, then serve requests.
type Service struct {
	cfg     *config.Config
	logger  *slog.Logger
	metrics *metrics.Metrics

	provider  llm.Provider
	emb       embedder.Embedder
	store     *vector.Store
	docs      []retrieval.Document
	retriever *retrieval.Retriever
	templates *ingest.TemplateStore
	cache     *cache.Cache
	engine    *workflow.Engine

	startedAt time.Time
}

// New wires the full pipeline from configuration. Without an OpenAI key the
// service runs sparse-only: BM25 retrieval works, dense search is skipped.
func New(cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	provider, err := llm.NewAnthropicClient(llm.AnthropicConfig{
		APIKey:      cfg.AnthropicAPIKey,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create LLM client: %w", err)
	}

	prompts, err := llm.NewPromptBuilder()
	if err != nil {
		return nil, fmt.Errorf("failed to create prompt builder: %w", err)
	}

	var store *vector.Store
	var emb embedder.Embedder
	if cfg.OpenAIAPIKey != "" {
		emb, err = embedder.NewFromConfig(embedder.Config{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.EmbeddingModel,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create embedder: %w", err)
		}
		vp, err := vector.NewChromemProvider(vector.ChromemConfig{
			PersistPath: cfg.VectorDir,
			Compress:    true,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open vector store: %w", err)
		}
		store = vector.NewStore(vp, emb, policyCollection, logger)
	} else {
		logger.Warn("OPENAI_API_KEY not set, dense retrieval disabled (sparse-only mode)")
	}

	policyDocs, err := ingest.LoadPolicies(cfg.PolicyDir, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy corpus: %w", err)
	}
	templates := ingest.LoadTemplates(cfg.TemplateCatalog, logger)
	docs := append(policyDocs, templates.Documents()...)

	retriever, err := retrieval.NewRetriever(store, docs, nil, retrieval.Config{
		DenseWeight:  cfg.DenseWeight,
		SparseWeight: cfg.SparseWeight,
		Normalize:    true,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to build retriever: %w", err)
	}

	m := metrics.New()
	resultCache := cache.New(cache.Config{
		TTL:      cfg.CacheTTL,
		MaxSize:  cfg.CacheMaxSize,
		Observer: m,
	})
	contexts := retrieval.NewContextBuilder(retriever, logger)
	metered := &meteredProvider{Provider: provider, metrics: m}

	engine := workflow.New(
		workflow.Config{
			MaxIterations:      cfg.MaxIterations,
			MinComplianceScore: cfg.MinComplianceScore,
			AutoRefinement:     cfg.AutoRefinement,
			StrictCompliance:   cfg.StrictCompliance,
		},
		analyzer.New(metered, prompts, resultCache, logger),
		contexts,
		generator.New(metered, prompts, templates, resultCache, logger),
		compliance.NewChecker(compliance.NewReviewer(metered, prompts, logger), logger),
		m,
		logger,
	)

	return &Service{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		provider:  provider,
		emb:       emb,
		store:     store,
		docs:      docs,
		retriever: retriever,
		templates: templates,
		cache:     resultCache,
		engine:    engine,
		startedAt: time.Now(),
	}, nil
}

// Index embeds the corpus into the vector store, batched and concurrent.
// With force the collection is dropped and rebuilt; otherwise a non-empty
// collection is left as is. A no-op in sparse-only mode.
func (s *Service) Index(ctx context.Context, force bool) error {
	if s.store == nil {
		s.logger.Info("No vector store configured, skipping dense indexing")
		return nil
	}

	if force {
		if err := s.store.Reset(ctx); err != nil {
			return fmt.Errorf("failed to reset vector collection: %w", err)
		}
	} else if count, err := s.store.Count(ctx); err == nil && count > 0 {
		s.logger.Info("Vector collection already populated, skipping indexing",
			"documents", count)
		return nil
	}

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(indexConcurrency)

	for begin := 0; begin < len(s.docs); begin += indexBatchSize {
		end := begin + indexBatchSize
		if end > len(s.docs) {
			end = len(s.docs)
		}
		batch := s.docs[begin:end]

		g.Go(func() error {
			vdocs := make([]vector.Doc, 0, len(batch))
			for _, doc := range batch {
				vdocs = append(vdocs, vector.Doc{
					ID:       doc.ID,
					Content:  doc.Content,
					Metadata: doc.Metadata,
				})
			}
			return s.store.Add(gctx, vdocs)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	s.logger.Info("Dense index built",
		"documents", len(s.docs),
		"duration", time.Since(start))
	return nil
}

// GenerateTemplate runs the full pipeline for one request.
func (s *Service) GenerateTemplate(ctx context.Context, req model.Request) *model.Result {
	return s.engine.Run(ctx, req)
}

// ValidateTemplate checks an existing template against current policy.
func (s *Service) ValidateTemplate(ctx context.Context, templateText, buttonSuggestion string) *model.Verdict {
	return s.engine.Validate(ctx, templateText, buttonSuggestion)
}

// SearchPolicies runs a raw hybrid search over the policy corpus.
func (s *Service) SearchPolicies(ctx context.Context, query string, topK int) ([]retrieval.Result, error) {
	return s.retriever.Search(ctx, query, topK, retrieval.ModeHybrid, "policy")
}

// Examples returns up to limit approved templates for a business type.
func (s *Service) Examples(businessType string, limit int) []model.ApprovedTemplate {
	bt, ok := model.ParseBusinessType(businessType)
	if !ok {
		return nil
	}
	return s.templates.FindSimilar(bt, "", limit)
}

// Categories lists the closed business and service type taxonomies.
func (s *Service) Categories() map[string][]string {
	business := make([]string, 0, len(model.BusinessTypes))
	for _, bt := range model.BusinessTypes {
		business = append(business, string(bt))
	}
	service := make([]string, 0, len(model.ServiceTypes))
	for _, st := range model.ServiceTypes {
		service = append(service, string(st))
	}
	tones := []string{
		string(model.ToneFormal), string(model.ToneFriendly), string(model.ToneOfficial),
	}
	return map[string][]string{
		"business_types": business,
		"service_types":  service,
		"tones":          tones,
	}
}

// Health reports component status for readiness probes.
func (s *Service) Health(ctx context.Context) map[string]any {
	health := map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.startedAt).Seconds()),
		"llm_model":      s.provider.Model(),
		"dense_enabled":  s.store != nil,
	}
	if s.store != nil {
		if count, err := s.store.Count(ctx); err == nil {
			health["indexed_documents"] = count
		} else {
			health["status"] = "degraded"
			health["vector_store_error"] = err.Error()
		}
	}
	return health
}

// Stats reports corpus, catalog, and cache statistics.
func (s *Service) Stats() map[string]any {
	return map[string]any{
		"retrieval": s.retriever.Stats(),
		"templates": s.templates.Len(),
		"cache":     s.cache.Stats(),
	}
}

// MetricsHandler exposes the Prometheus registry in exposition format.
func (s *Service) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

// meteredProvider counts token usage on every completion.
type meteredProvider struct {
	llm.Provider
	metrics *metrics.Metrics
}

func (p *meteredProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	resp, err := p.Provider.Complete(ctx, req)
	if resp != nil {
		p.metrics.AddTokens(resp.TokensUsed)
	}
	return resp, err
}

// Close releases provider resources.
func (s *Service) Close() error {
	if s.emb != nil {
		if err := s.emb.Close(); err != nil {
			return err
		}
	}
	return s.provider.Close()
}
