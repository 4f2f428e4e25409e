package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/fatih/color"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ShayCichocki/modernity/internal/api"
	"github.com/ShayCichocki/modernity/internal/artefact"
	"github.com/ShayCichocki/modernity/internal/config"
	"github.com/ShayCichocki/modernity/internal/flow"
	"github.com/ShayCichocki/modernity/internal/logging"
	"github.com/ShayCichocki/modernity/internal/progress"
	"github.com/ShayCichocki/modernity/internal/textgen"
	"github.com/ShayCichocki/modernity/internal/tools"
)

// serviceOptions tunes buildServices for the calling command.
type serviceOptions struct {
	// sink receives progress in addition to the log and Redis sinks.
	sink progress.Sink
	// quiet keeps logs off stderr, for commands that own the terminal.
	quiet bool
}

// services is everything a command needs to run flows.
type services struct {
	cfg     *config.Config
	logger  *zap.Logger
	engine  *flow.Engine
	rubrics *artefact.RubricSet
	tracker *api.TokenTracker
	closers []func() error
}

// loadConfig reads the configuration named by --config, or the user and
// project files, and applies flag overrides.
func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if cfgFile != "" {
		cfg, err = config.LoadFromPath(cfgFile)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if logFile != "" {
		cfg.Log.File = logFile
	}
	return cfg, nil
}

// buildServices wires config, logging, the provider, tool servers and
// progress sinks into a flow engine. Close must be called when done.
func buildServices(ctx context.Context, opts serviceOptions) (*services, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(logging.Options{
		Level:       cfg.Log.Level,
		File:        cfg.Log.File,
		Quiet:       opts.quiet,
		Development: true,
	})
	if err != nil {
		return nil, err
	}

	s := &services{cfg: cfg, logger: logger}
	s.closers = append(s.closers, func() error {
		_ = logger.Sync()
		return nil
	})

	svc, err := s.newTextService(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}

	rubrics, err := loadRubrics(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.rubrics = rubrics

	sinks := progress.Multi{progress.LogSink{Logger: logger.Named("progress")}}
	if cfg.Progress.RedisAddr != "" {
		rs, err := progress.NewRedisSink(ctx, progress.RedisSinkConfig{
			Options: &redis.Options{Addr: cfg.Progress.RedisAddr},
			Channel: cfg.Progress.RedisChannel,
			Logger:  logger.Named("redis"),
		})
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, rs.Close)
		sinks = append(sinks, rs)
	}
	if opts.sink != nil {
		sinks = append(sinks, opts.sink)
	}

	pipelineCfg := artefact.Config{
		Rubrics:     rubrics,
		MaxParallel: cfg.Analysis.MaxParallel,
		Synthesize:  cfg.Analysis.Synthesize,
	}
	if len(cfg.Tools.MCPServers) > 0 {
		registry, err := s.dialTools(ctx)
		if err != nil {
			s.Close()
			return nil, err
		}
		pipelineCfg.Tools = registry
	}

	engine, err := flow.NewEngine(
		flow.RequiredConfig{Service: svc},
		flow.WithLogger(logger),
		flow.WithSink(sinks),
		flow.WithPipelineConfig(pipelineCfg),
	)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.engine = engine
	return s, nil
}

// newTextService creates the configured provider.
func (s *services) newTextService(ctx context.Context) (textgen.Service, error) {
	cfg := s.cfg
	bedrock := cfg.Provider.Name == config.ProviderAnthropic && cfg.Provider.Bedrock.Enabled

	var key string
	if !bedrock {
		k, err := config.GetAPIKey(cfg)
		if err != nil {
			return nil, err
		}
		key = k
	}

	switch cfg.Provider.Name {
	case config.ProviderGemini:
		g, err := api.NewGemini(ctx, api.GeminiConfig{
			APIKey:            key,
			Model:             cfg.Provider.Model,
			MaxTokens:         int32(cfg.Provider.MaxTokens),
			Temperature:       cfg.Provider.Temperature,
			MaxRetries:        cfg.Provider.MaxRetries,
			RequestsPerSecond: cfg.Gemini.RequestsPerSecond,
			Logger:            s.logger.Named("gemini"),
		})
		if err != nil {
			return nil, fmt.Errorf("create Gemini client: %w", err)
		}
		s.tracker = g.Tracker()
		return g, nil

	default:
		client, err := api.NewClient(api.ClientConfig{
			Model:         anthropic.Model(cfg.Provider.Model),
			APIKey:        key,
			MaxRetries:    cfg.Provider.MaxRetries,
			Timeout:       cfg.Provider.Timeout,
			UseAWSBedrock: bedrock,
			AWSRegion:     cfg.Provider.Bedrock.Region,
			AWSProfile:    cfg.Provider.Bedrock.Profile,
		})
		if err != nil {
			return nil, fmt.Errorf("create API client: %w", err)
		}
		s.tracker = client.Tracker()
		return api.NewRunner(client, api.RunnerConfig{
			MaxTokens:   int64(cfg.Provider.MaxTokens),
			Temperature: cfg.Provider.Temperature,
			Logger:      s.logger.Named("anthropic"),
		}), nil
	}
}

// dialTools connects the configured MCP servers. Servers that cannot be
// reached are reported and skipped; it fails only when none connect.
func (s *services) dialTools(ctx context.Context) (*tools.Registry, error) {
	servers := make([]tools.ServerConfig, 0, len(s.cfg.Tools.MCPServers))
	for _, m := range s.cfg.Tools.MCPServers {
		servers = append(servers, tools.ServerConfig{Name: m.Name, URL: m.URL, Transport: m.Transport})
	}

	registry := tools.NewRegistry(s.logger.Named("mcp"))
	err := registry.Dial(ctx, servers)
	if registry.Len() == 0 {
		_ = registry.Close()
		return nil, fmt.Errorf("connect MCP servers: %w", err)
	}
	if err != nil {
		s.logger.Warn("some MCP servers are unavailable", zap.Error(err))
	}
	s.closers = append(s.closers, registry.Close)
	return registry, nil
}

func loadRubrics(cfg *config.Config) (*artefact.RubricSet, error) {
	return artefact.LoadRubrics(cfg.Analysis.RubricsFile)
}

// Close releases connections in reverse order of acquisition.
func (s *services) Close() {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Debug("close services", zap.Error(err))
	}
	s.closers = nil
}

// printUsage prints token usage for the run, if the provider tracks it.
func (s *services) printUsage() {
	if s.tracker == nil || s.tracker.Calls() == 0 {
		return
	}
	in, out := s.tracker.Total()
	dim := color.New(color.Faint)
	dim.Printf("%d calls, %d input / %d output tokens", s.tracker.Calls(), in, out)
	if s.cfg.Provider.Name == config.ProviderAnthropic {
		dim.Printf(", ~$%.4f", s.tracker.Cost())
	}
	fmt.Println()
}
