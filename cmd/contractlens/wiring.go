package main

import (
	"log/slog"

	"github.com/dgallion1/contractlens/internal/config"
	"github.com/dgallion1/contractlens/internal/consolidate"
	"github.com/dgallion1/contractlens/internal/pipeline"
	"github.com/dgallion1/contractlens/internal/reasoning"
	"github.com/dgallion1/contractlens/internal/stage"
)

func newReasoningClient(cfg config.Config) (*reasoning.Client, error) {
	return reasoning.New(reasoning.Config{
		Provider:          cfg.ReasoningProvider,
		AnthropicAPIKey:   cfg.AnthropicAPIKey,
		AnthropicModel:    cfg.AnthropicModel,
		MistralAPIKey:     cfg.MistralAPIKey,
		MistralModel:      cfg.MistralModel,
		MaxTokens:         cfg.ReasoningMaxTokens,
		RequestTimeout:    cfg.StageTimeout,
		RequestsPerMinute: cfg.ReasoningRPM,
	})
}

// newPipeline loads the stage table and validates it against r.
func newPipeline(cfg config.Config, r reasoning.Reasoner, log *slog.Logger) (*pipeline.Pipeline, error) {
	defs, err := stage.LoadDefinitions(cfg.StagesFile)
	if err != nil {
		return nil, err
	}
	cons := consolidate.New(r, consolidate.WithDedup(cfg.DedupPrepass), consolidate.WithLogger(log))
	return pipeline.New(pipeline.Config{
		Stages:              defs,
		StageTimeout:        cfg.StageTimeout,
		StageRetries:        cfg.StageRetries,
		MaxConcurrentStages: cfg.MaxConcurrentStages,
		ChunkSize:           cfg.ChunkSize,
		ChunkOverlap:        cfg.ChunkOverlap,
	}, r, cons, log)
}
