// Package registry loads workflow definitions from a directory of YAML and JSON files and
// resolves workflow references against them.
package registry

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/dukex/handoff/pkg/models"
	"gopkg.in/yaml.v3"
)

// ErrWorkflowNotFound is returned when no loaded workflow matches a reference.
var ErrWorkflowNotFound = errors.New("workflow not found")

// Registry resolves workflow references such as "delivery" or "delivery@2025.1".
type Registry struct {
	dir    string
	cache  Cache
	logger *slog.Logger
	now    func() time.Time
}

type Option func(*Registry)

// WithCache replaces the default in-memory cache.
func WithCache(cache Cache) Option {
	return func(r *Registry) {
		if cache != nil {
			r.cache = cache
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithClock sets the clock used to pick the effective version of an unpinned reference.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

func New(dir string, opts ...Option) *Registry {
	r := &Registry{
		dir:    dir,
		cache:  NewMemoryCache(),
		logger: slog.Default().With("module", "registry"),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Workflow resolves ref. A reference pinned with "@version" must match that version exactly.
// An unpinned reference resolves to the version effective now with the latest effectiveFrom,
// or to the highest version when none is effective.
func (r *Registry) Workflow(ctx context.Context, ref string) (*models.Workflow, error) {
	catalog, err := r.catalog(ctx)
	if err != nil {
		return nil, err
	}

	id, version, pinned := strings.Cut(strings.TrimSpace(ref), "@")

	versions := catalog[id]
	if len(versions) == 0 {
		return nil, fmt.Errorf("%w: %s in %s", ErrWorkflowNotFound, id, r.dir)
	}

	if pinned {
		for _, workflow := range versions {
			if workflow.Version() == version {
				return workflow, nil
			}
		}

		return nil, fmt.Errorf("%w: %s version %s in %s", ErrWorkflowNotFound, id, version, r.dir)
	}

	return effective(versions, r.now()), nil
}

// List returns every loaded workflow version ordered by id and version.
func (r *Registry) List(ctx context.Context) ([]*models.Workflow, error) {
	catalog, err := r.catalog(ctx)
	if err != nil {
		return nil, err
	}

	workflows := make([]*models.Workflow, 0, len(catalog))
	for _, versions := range catalog {
		workflows = append(workflows, versions...)
	}

	slices.SortFunc(workflows, func(a, b *models.Workflow) int {
		return cmp.Or(strings.Compare(a.ID(), b.ID()), strings.Compare(a.Version(), b.Version()))
	})

	return workflows, nil
}

// Refresh reloads the definitions from disk and replaces the cached catalog.
func (r *Registry) Refresh(ctx context.Context) error {
	r.cache.Invalidate()

	_, err := r.catalog(ctx)

	return err
}

func (r *Registry) catalog(ctx context.Context) (Catalog, error) {
	if catalog, ok := r.cache.Get(); ok {
		return catalog, nil
	}

	catalog, err := r.load(ctx)
	if err != nil {
		return nil, err
	}

	r.cache.Put(catalog)

	return catalog, nil
}

func (r *Registry) load(ctx context.Context) (Catalog, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflows directory %s: %w", r.dir, err)
	}

	catalog := Catalog{}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}

		extension := strings.ToLower(filepath.Ext(entry.Name()))
		if extension != ".yaml" && extension != ".yml" && extension != ".json" {
			continue
		}

		path := filepath.Join(r.dir, entry.Name())

		workflow, err := readWorkflow(path, extension)
		if err != nil {
			return nil, err
		}

		for _, existing := range catalog[workflow.ID()] {
			if existing.Version() == workflow.Version() {
				return nil, fmt.Errorf("%w: %s: workflow %s version %s is defined twice",
					models.ErrInvalid, path, workflow.ID(), workflow.Version())
			}
		}

		catalog[workflow.ID()] = append(catalog[workflow.ID()], workflow)
	}

	r.logger.DebugContext(ctx, "Workflows loaded", "dir", r.dir, "count", len(catalog))

	return catalog, nil
}

func readWorkflow(path, extension string) (*models.Workflow, error) {
	raw, err := os.ReadFile(path) // #nosec G304 -- path comes from the workflows directory listing
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file %s: %w", path, err)
	}

	var definition models.WorkflowDefinition

	if extension == ".json" {
		err = json.Unmarshal(raw, &definition)
	} else {
		err = yaml.Unmarshal(raw, &definition)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", models.ErrInvalid, path, err)
	}

	workflow, err := models.NewWorkflow(definition)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}

	return workflow, nil
}

func effective(versions []*models.Workflow, now time.Time) *models.Workflow {
	candidates := make([]*models.Workflow, 0, len(versions))

	for _, workflow := range versions {
		if workflow.EffectiveAt(now) {
			candidates = append(candidates, workflow)
		}
	}

	if len(candidates) == 0 {
		candidates = versions
	}

	return slices.MaxFunc(candidates, func(a, b *models.Workflow) int {
		return cmp.Or(
			a.EffectiveFrom().Compare(b.EffectiveFrom()),
			strings.Compare(a.Version(), b.Version()),
		)
	})
}
