package main

import (
	"context"
	"fmt"

	"github.com/nous-labs/switchboard/internal/channel"
	"github.com/nous-labs/switchboard/internal/channel/matrix"
	"github.com/nous-labs/switchboard/internal/config"
	"github.com/nous-labs/switchboard/internal/llm"
	"github.com/nous-labs/switchboard/internal/registry"
	"github.com/nous-labs/switchboard/internal/router"
)

// buildBackend creates the configured completion backend.
func buildBackend(cfg *config.Config) (llm.Backend, error) {
	switch cfg.Backend.Provider {
	case "ollama":
		return llm.NewOllama(cfg.Backend.BaseURL, llm.WithRequestTimeout(cfg.Backend.RequestTimeout)), nil
	case "anthropic":
		baseURL := cfg.Backend.BaseURL
		if baseURL == llm.DefaultOllamaURL {
			baseURL = ""
		}
		return llm.NewAnthropic(cfg.Backend.APIKey, baseURL, cfg.Backend.RequestTimeout), nil
	default:
		return nil, fmt.Errorf("unknown backend provider %q", cfg.Backend.Provider)
	}
}

// openRegistry opens the configured project registry. It returns nil, nil
// when the registry is disabled.
func openRegistry(ctx context.Context, cfg *config.Config) (registry.Registry, error) {
	opts := []registry.Option{registry.WithRoot(cfg.Projects.Root)}
	switch cfg.Projects.Driver {
	case "sqlite":
		r, err := registry.OpenSQLite(ctx, cfg.Projects.Path, opts...)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "postgres":
		r, err := registry.OpenPostgres(ctx, cfg.Projects.PostgresURL, opts...)
		if err != nil {
			return nil, err
		}
		return r, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown projects driver %q", cfg.Projects.Driver)
	}
}

// buildRouter registers handlers in dispatch order: code, system, project.
// projects may be nil.
func buildRouter(cfg *config.Config, backend llm.Backend, liveness func() llm.Liveness, projects registry.Registry) (*router.Router, error) {
	var lister router.ProjectLister
	if projects != nil {
		lister = projects
	}

	code := router.NewCodeHandler(backend, router.CodeModels{
		Code:      cfg.Models.Code,
		Debug:     cfg.Models.Debug,
		Review:    cfg.Models.Review,
		Languages: cfg.Models.Languages,
	}, router.NewKeywords(cfg.Keywords.Code...))

	system := router.NewSystemHandler(router.SystemConfig{
		Profile: router.SystemProfile{
			Host: cfg.System.Host,
			GPU:  cfg.System.GPU,
			VRAM: cfg.System.VRAM,
			RAM:  cfg.System.RAM,
		},
		Keywords: router.NewKeywords(cfg.Keywords.System...),
		Liveness: liveness,
	})

	project := router.NewProjectHandler(lister, cfg.Projects.RecentLimit, router.NewKeywords(cfg.Keywords.Project...))

	return router.New(router.Config{
		Backend:      backend,
		DefaultModel: cfg.Models.Default,
		Handlers:     []router.Handler{code, system, project},
	})
}

// buildChannels returns the enabled chat channels.
func buildChannels(cfg *config.Config) []channel.Channel {
	var out []channel.Channel
	if cfg.Matrix.Enabled {
		out = append(out, matrix.New(matrix.Config{
			Homeserver:   cfg.Matrix.Homeserver,
			UserID:       cfg.Matrix.UserID,
			Password:     cfg.Matrix.Password,
			ServerName:   cfg.Matrix.ServerName,
			AllowedUsers: cfg.Matrix.AllowedUsers,
			DataDir:      cfg.Matrix.DataDir,
		}))
	}
	return out
}
