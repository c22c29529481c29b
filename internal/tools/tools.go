// Package tools implements the built-in capabilities: GitHub, OpenWeatherMap
// and NewsAPI lookups plus local compute helpers for shaping step outputs.
package tools

import (
	"fmt"
	"net/http"
	"time"

	"github.com/harrison/taskpilot/internal/config"
	"github.com/harrison/taskpilot/internal/registry"
)

// Options configures the built-in tools.
type Options struct {
	APIs       config.APIConfig
	HTTPClient *http.Client     // Defaults to a client without its own timeout; attempts carry deadlines
	Now        func() time.Time // Defaults to time.Now
}

// RegisterAll adds every built-in capability to reg.
func RegisterAll(reg *registry.Registry, opts Options) error {
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	var descs []registry.Descriptor
	descs = append(descs, githubCapabilities(newGitHubClient(opts))...)
	descs = append(descs, weatherCapabilities(newWeatherClient(opts))...)
	descs = append(descs, newsCapabilities(newNewsClient(opts))...)
	descs = append(descs, computeCapabilities()...)

	for _, d := range descs {
		if err := reg.Register(d); err != nil {
			return fmt.Errorf("register %s: %w", d.Name, err)
		}
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func errMissingKey(envVar string) error {
	return fmt.Errorf("%s not configured", envVar)
}
