package main

import (
	"log/slog"
	"strings"
	"sync"

	"xaio/internal/artifact"
	"xaio/internal/config"
	"xaio/internal/ledger"
	"xaio/internal/lease"
	"xaio/internal/logging"
	"xaio/internal/services/ai"
	"xaio/internal/services/fetch"
	"xaio/internal/services/publish"
	"xaio/internal/stage"
	"xaio/internal/stages"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// engine bundles the opened stores and adapters behind one Close.
type engine struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *ledger.Store
	leases    *lease.Manager
	artifacts *artifact.Store
	adapters  map[string]stage.Adapter
}

func (c *commandContext) openEngine() (*engine, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	store, err := ledger.Open(cfg)
	if err != nil {
		return nil, err
	}

	artifacts, err := artifact.Open(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	aiClient := ai.NewClient(ai.Config{
		BaseURL:        cfg.AI.BaseURL,
		APIKey:         cfg.AI.APIKey,
		Model:          cfg.AI.Model,
		TimeoutSeconds: cfg.AI.TimeoutSeconds,
	})
	fetchClient := fetch.NewClient(fetch.Config{
		Endpoint:       cfg.Fetch.Endpoint,
		TimeoutSeconds: cfg.Fetch.TimeoutSeconds,
	})
	publishClient := publish.NewClient(publish.Config{
		Endpoint:       cfg.Publish.Endpoint,
		APIKey:         cfg.Publish.APIKey,
		PostStatus:     cfg.Publish.PostStatus,
		TimeoutSeconds: cfg.Publish.TimeoutSeconds,
	})

	adapters := map[string]stage.Adapter{
		stage.Capture: stages.NewCapture(fetchClient),
		stage.Reduce:  stages.NewReduce(cfg.AI.MetaPromptSet),
		stage.Meta:    stages.NewMeta(aiClient, cfg.AI.MetaPromptSet),
		stage.Claims:  stages.NewClaims(aiClient, cfg.AI.ClaimsPromptSet),
		stage.Merge:   stages.NewMerge(),
		stage.Publish: stages.NewPublish(publishClient),
	}

	return &engine{
		cfg:       cfg,
		logger:    logger,
		store:     store,
		leases:    lease.New(store.DB()),
		artifacts: artifacts,
		adapters:  adapters,
	}, nil
}

func (e *engine) Close() error {
	return e.store.Close()
}
