// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/dukex/handoff/pkg/registry"
)

// NewRegistry creates the workflow registry over workflowsDir with an in-memory cache.
func NewRegistry(logger *slog.Logger, workflowsDir string) *registry.Registry {
	return registry.New(workflowsDir,
		registry.WithCache(registry.NewMemoryCache()),
		registry.WithLogger(logger),
	)
}
