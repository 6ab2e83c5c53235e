// Package app wires configuration, storage, integrations, the model client
// and the turn engine into a runnable service.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ent0n29/penny/internal/config"
	"github.com/ent0n29/penny/internal/httpapi"
	"github.com/ent0n29/penny/internal/integrations"
	"github.com/ent0n29/penny/internal/knowledge"
	"github.com/ent0n29/penny/internal/memory"
	"github.com/ent0n29/penny/internal/model"
	"github.com/ent0n29/penny/internal/observability"
	"github.com/ent0n29/penny/internal/orchestrator"
	"github.com/ent0n29/penny/internal/proactive"
	"github.com/ent0n29/penny/internal/schedule"
	"github.com/ent0n29/penny/internal/store"
	"github.com/ent0n29/penny/internal/tools"
)

type BuildResult struct {
	Config    config.Config
	API       *httpapi.Server
	Engine    *orchestrator.Engine
	Processor *proactive.Processor
	Worker    *proactive.Worker
	Store     store.Store
	Metrics   *observability.Metrics

	// Cleanup should be called on shutdown to release external resources.
	Cleanup func() error
}

func Build(ctx context.Context, cfg config.Config) (*BuildResult, error) {
	metrics := observability.NewMetrics(cfg.MetricsNamespace)

	st, err := store.New(ctx, cfg.DatabaseURL, cfg.EmbeddingDim)
	if err != nil {
		return nil, fmt.Errorf("store init failed: %w", err)
	}

	client, err := model.NewClient(cfg.ModelMode, model.OpenAIConfig{
		APIKey:       cfg.OpenAIAPIKey,
		ChatModel:    cfg.ChatModel,
		EmbedModel:   cfg.EmbeddingModel,
		EmbeddingDim: cfg.EmbeddingDim,
		Timeout:      cfg.ModelTimeout,
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("model client init failed: %w", err)
	}

	loc, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("timezone %q: %w", cfg.DefaultTimezone, err)
	}

	mail := integrations.NewGmailClient(nil)
	calendar := integrations.NewCalendarClient(nil)
	crm := integrations.NewHubSpotClient(nil)

	retriever := knowledge.NewRetriever(st, client, cfg.EmbeddingDim)
	ingestor := knowledge.NewIngestor(st, client, mail, crm, cfg.EmbeddingDim)

	slots := schedule.SlotConfig{
		Duration:      cfg.DefaultMeetingDuration,
		DaysToScan:    cfg.SlotScanDays,
		Step:          cfg.SlotStep,
		WorkStartHour: cfg.WorkDayStartHour,
		WorkEndHour:   cfg.WorkDayEndHour,
	}
	resolver := schedule.NewResolver(st, calendar, loc, slots)

	registry := tools.NewCatalog(tools.Deps{
		Store:     st,
		Mail:      mail,
		Calendar:  calendar,
		CRM:       crm,
		Retriever: retriever,
		Model:     client,
		Resolver:  resolver,
		Slots:     slots,
		Location:  loc,
	})

	mem := memory.NewService(st, client, memory.Config{
		RecentWindow:  cfg.RecentWindow,
		SummaryAfter:  cfg.SummaryAfter,
		SummaryKeep:   cfg.SummaryKeep,
		SummaryMaxLen: cfg.SummaryMaxLen,
	})

	engine := orchestrator.NewEngine(orchestrator.Deps{
		Store:         st,
		Memory:        mem,
		Retriever:     retriever,
		Registry:      registry,
		Resolver:      resolver,
		Model:         client,
		Metrics:       metrics,
		Timezone:      cfg.DefaultTimezone,
		KnowledgeTopK: cfg.KnowledgeTopK,
	})

	processor := proactive.NewProcessor(st, retriever, client, crm, metrics)
	worker := proactive.NewWorker(st, ingestor, cfg.WorkerInterval)

	api := httpapi.New(cfg, engine, processor, metrics)

	return &BuildResult{
		Config:    cfg,
		API:       api,
		Engine:    engine,
		Processor: processor,
		Worker:    worker,
		Store:     st,
		Metrics:   metrics,
		Cleanup:   st.Close,
	}, nil
}
