package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/spigell/formfill/internal/ai"
	"github.com/spigell/formfill/internal/ai/claude"
	"github.com/spigell/formfill/internal/ai/gemini"
	"github.com/spigell/formfill/internal/answers"
	"github.com/spigell/formfill/internal/fields"
	"github.com/spigell/formfill/internal/history"
	"github.com/spigell/formfill/internal/logger"
	"github.com/spigell/formfill/internal/resolution"
	"github.com/spigell/formfill/internal/secrets"
	"github.com/spigell/formfill/internal/store"

	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// deps holds everything a command needs, built from the configuration.
type deps struct {
	config      *Config
	logger      *zap.Logger
	store       store.Store
	closeStore  func() error
	generator   ai.Generator
	engine      *resolution.Engine
	synthesizer *answers.Synthesizer
	history     *history.History
}

func newDeps(ctx context.Context) *deps {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	logger.Debug("starting", zap.String("app", app), zap.String("version", version))

	kv, closeStore, err := store.Open(ctx, config.Store)
	if err != nil {
		logger.Fatal("opening the store", zap.Error(err))
	}

	policies, err := fields.LoadPolicies(config.PolicyFile)
	if err != nil {
		logger.Fatal("loading the field policy", zap.Error(err))
	}

	var generator ai.Generator
	if config.AI != nil && config.AI.Enabled {
		generator, err = newGenerator(ctx, config.AI, logger)
		if err != nil {
			logger.Warn("generative text provider disabled", zap.Error(err))
			generator = nil
		}
	}

	var semantic resolution.BatchResolver
	if generator != nil {
		semantic = resolution.NewSemantic(generator, logger.Named("semantic"), config.MaxLogLength)
	}

	cache := resolution.NewCache(kv, logger.Named("cache"))
	engine := resolution.NewEngine(fields.NewHeuristics(), cache, semantic, logger.Named("resolution"))
	synthesizer := answers.NewSynthesizer(kv, generator, policies, logger.Named("answers"), config.MaxLogLength)

	return &deps{
		config:      config,
		logger:      logger,
		store:       kv,
		closeStore:  closeStore,
		generator:   generator,
		engine:      engine,
		synthesizer: synthesizer,
		history:     history.New(kv, logger.Named("history")),
	}
}

func (d *deps) Close() {
	if err := d.closeStore(); err != nil {
		d.logger.Warn("closing the store", zap.Error(err))
	}
	_ = d.logger.Sync()
}

func (d *deps) profile() *answers.Profile {
	profile, err := d.loadProfile()
	if err != nil {
		d.logger.Fatal("loading the profile", zap.Error(err))
	}
	return profile
}

func (d *deps) loadProfile() (*answers.Profile, error) {
	if d.config.Profile == nil {
		return nil, errors.New("profile section is required in the configuration")
	}
	if err := d.config.Profile.Validate(); err != nil {
		return nil, fmt.Errorf("validating the profile: %w", err)
	}
	return d.config.Profile, nil
}

// newGenerator builds the configured generative text provider.
func newGenerator(ctx context.Context, cfg *AIConfig, log *zap.Logger) (ai.Generator, error) {
	provider := strings.TrimSpace(strings.ToLower(cfg.Provider))
	if provider == "" {
		provider = ai.ProviderGemini
	}

	switch provider {
	case ai.ProviderGemini:
		gc := cfg.Gemini
		if gc == nil {
			gc = &GeminiConfig{}
		}
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "gemini api key",
			Value: gc.APIKey,
			File:  gc.APIKeyFile,
			Env:   "GEMINI_API_KEY",
		})
		if err != nil {
			return nil, err
		}

		genLogger := logger.WithFields(log, logger.CommonFields(provider, gc.Model)...)
		return gemini.NewGenerator(ctx, apiKey, gemini.Config{
			Model:      gc.Model,
			MaxRetries: gc.MaxRetries,
			Timeout:    gc.Timeout,
		}, genLogger)

	case ai.ProviderClaude:
		cc := cfg.Claude
		if cc == nil {
			cc = &ClaudeConfig{}
		}
		apiKey, err := secrets.Load(secrets.Source{
			Name:  "claude api key",
			Value: cc.APIKey,
			File:  cc.APIKeyFile,
			Env:   "ANTHROPIC_API_KEY",
		})
		if err != nil {
			return nil, err
		}

		genLogger := logger.WithFields(log, logger.CommonFields(provider, cc.Model)...)
		return claude.NewGenerator(apiKey, claude.Config{
			Model:     cc.Model,
			MaxTokens: cc.MaxTokens,
			Timeout:   cc.Timeout,
		}, genLogger)

	default:
		return nil, fmt.Errorf("unsupported ai provider: %s", cfg.Provider)
	}
}
