package main

import (
	"context"
	"log/slog"

	"github.com/lmittmann/tint"

	"github.com/bdougie/truthlens/internal/analyzer"
	"github.com/bdougie/truthlens/internal/config"
	"github.com/bdougie/truthlens/internal/extractor"
	"github.com/bdougie/truthlens/internal/session"
	"github.com/bdougie/truthlens/internal/storage"
)

// pipeline bundles the collaborators every session shares
type pipeline struct {
	sampler  *extractor.Sampler
	analyzer *analyzer.Analyzer
	archive  storage.Storage
	session  session.Config
	logger   *slog.Logger
}

func newPipeline(ctx context.Context, c *config.Config, logger *slog.Logger) (*pipeline, error) {
	archive, err := storage.Open(ctx, archiveConfig(c))
	if err != nil {
		return nil, err
	}

	sampler := extractor.NewSampler(extractor.Options{
		FFmpegPath:  c.Extractor.FFmpegPath,
		FFprobePath: c.Extractor.FFprobePath,
		Quality:     c.Extractor.Quality,
	}, logger)

	oracle := analyzer.NewAgent(analyzer.AgentConfig{
		APIKey:  c.Anthropic.Key,
		BaseURL: c.Anthropic.BaseURL,
	}, logger)

	return &pipeline{
		sampler: sampler,
		analyzer: analyzer.NewAnalyzer(oracle, analyzer.Config{
			Model:       c.Anthropic.Model,
			MaxTokens:   c.Anthropic.MaxTokens,
			Temperature: c.Anthropic.Temperature,
		}, logger),
		archive: archive,
		session: sessionConfig(c),
		logger:  logger,
	}, nil
}

func (p *pipeline) newSession(id string) *session.Session {
	return session.New(id, p.sampler, p.analyzer, p.archive, p.session, p.logger)
}

func (p *pipeline) Close() {
	if err := p.archive.Close(); err != nil {
		p.logger.Error("failed to close archive", tint.Err(err))
	}
}

func sessionConfig(c *config.Config) session.Config {
	return session.Config{
		FrameCount:     c.Session.Frames,
		TickInterval:   c.Session.TickInterval,
		SettleDelay:    c.Session.SettleDelay,
		MaxUploadBytes: int64(c.Server.MaxUploadMB) << 20,
	}
}

func archiveConfig(c *config.Config) storage.Config {
	return storage.Config{
		Driver:   c.Archive.Driver,
		Dir:      c.Archive.Dir,
		Postgres: storage.PostgresConfig{URL: c.Archive.DatabaseURL},
	}
}
