// Package engine wires the configuration pipeline together: parse, resolve,
// plan, and apply against a state backend and a provider.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/strato-labs/stratoctl/pkg/config"
	"github.com/strato-labs/stratoctl/pkg/engine/executor"
	"github.com/strato-labs/stratoctl/pkg/engine/planner"
	stratoerrors "github.com/strato-labs/stratoctl/pkg/errors"
	"github.com/strato-labs/stratoctl/pkg/graph"
	"github.com/strato-labs/stratoctl/pkg/provider"
	"github.com/strato-labs/stratoctl/pkg/resolver"
	"github.com/strato-labs/stratoctl/pkg/secrets"
	"github.com/strato-labs/stratoctl/pkg/state"
	"github.com/strato-labs/stratoctl/pkg/state/backend"
	"github.com/strato-labs/stratoctl/pkg/state/types"
)

// Options configures an Engine.
type Options struct {
	// Parallelism bounds concurrent provider operations during apply.
	Parallelism int

	// Secrets backs the secret() configuration function. Nil disables it.
	Secrets *secrets.Manager

	Logger zerolog.Logger
}

// Engine is the top-level reconciliation pipeline.
type Engine struct {
	stateManager state.Manager
	prov         provider.Provider
	secrets      *secrets.Manager
	parallelism  int
	logger       zerolog.Logger
}

// New creates an engine over a state manager and a provider.
func New(stateManager state.Manager, prov provider.Provider, opts Options) *Engine {
	if opts.Parallelism <= 0 {
		opts.Parallelism = 10
	}
	return &Engine{
		stateManager: stateManager,
		prov:         prov,
		secrets:      opts.Secrets,
		parallelism:  opts.Parallelism,
		logger:       opts.Logger,
	}
}

// Loaded is the result of parsing and resolving a configuration file.
type Loaded struct {
	Doc   *config.Document
	Graph *graph.Graph
}

// Load parses the configuration, resolves variables and counts, expands
// counted resources, and resolves every attribute expression in dependency
// order. The returned graph carries concrete desired values.
func (e *Engine) Load(ctx context.Context, path string, vars map[string]interface{}) (*Loaded, error) {
	doc, err := config.NewParser().Parse(path)
	if err != nil {
		return nil, err
	}

	var secretSource resolver.SecretSource
	if e.secrets != nil {
		secretSource = e.secrets
	}
	res := resolver.NewResolver(ctx, doc, e.prov, secretSource)

	if err := res.ResolveVariables(vars); err != nil {
		return nil, err
	}

	counts, err := res.EvalCounts()
	if err != nil {
		return nil, err
	}

	g, err := graph.NewBuilder(stackNameFromPath(path), doc, counts).Build()
	if err != nil {
		return nil, err
	}

	if err := res.ResolveGraph(ctx, g); err != nil {
		return nil, err
	}

	e.logger.Debug().
		Str("path", path).
		Int("resources", len(g.ResourceNodes())).
		Msg("configuration loaded")

	return &Loaded{Doc: doc, Graph: g}, nil
}

// Validate runs the full load pipeline without touching state. Data sources
// are still read, since expressions may depend on their results.
func (e *Engine) Validate(ctx context.Context, path string, vars map[string]interface{}) (*Loaded, error) {
	return e.Load(ctx, path, vars)
}

// Plan loads the configuration and diffs it against the recorded state of
// the named stack. Planning never mutates state.
func (e *Engine) Plan(ctx context.Context, stack, path string, vars map[string]interface{}) (*planner.Plan, error) {
	loaded, err := e.Load(ctx, path, vars)
	if err != nil {
		return nil, err
	}

	stackState, err := e.loadStack(ctx, stack)
	if err != nil {
		return nil, err
	}

	return planner.NewPlanner(e.prov).Plan(loaded.Doc, loaded.Graph, stackState)
}

// Apply plans and then executes. The stack lock is held for the duration;
// the updated state is persisted even on partial failure.
func (e *Engine) Apply(ctx context.Context, stack, path string, vars map[string]interface{}, dryRun bool) (*planner.Plan, *executor.Result, error) {
	loaded, err := e.Load(ctx, path, vars)
	if err != nil {
		return nil, nil, err
	}

	lock, stackState, err := e.lockStack(ctx, stack, "apply")
	if err != nil {
		return nil, nil, err
	}
	defer lock.Unlock(context.Background())

	if stackState == nil {
		stackState = types.NewStackState(stack)
	}
	stackState.Status = types.StackStatusApplying

	plan, err := planner.NewPlanner(e.prov).Plan(loaded.Doc, loaded.Graph, stackState)
	if err != nil {
		return nil, nil, err
	}

	result, err := e.execute(ctx, plan, loaded.Graph, stackState, dryRun)
	return plan, result, err
}

// Destroy removes every recorded resource, dependents first.
func (e *Engine) Destroy(ctx context.Context, stack, path string, vars map[string]interface{}, dryRun bool) (*planner.Plan, *executor.Result, error) {
	loaded, err := e.Load(ctx, path, vars)
	if err != nil {
		return nil, nil, err
	}

	lock, stackState, err := e.lockStack(ctx, stack, "destroy")
	if err != nil {
		return nil, nil, err
	}
	defer lock.Unlock(context.Background())

	if stackState == nil {
		// Nothing recorded, nothing to destroy.
		return &planner.Plan{Stack: stack}, &executor.Result{Success: true}, nil
	}

	plan, err := planner.NewPlanner(e.prov).PlanDestroy(loaded.Graph, stackState)
	if err != nil {
		return nil, nil, err
	}

	result, err := e.execute(ctx, plan, loaded.Graph, stackState, dryRun)
	if err != nil {
		return plan, result, err
	}

	if result.Success && !dryRun && len(stackState.Resources) == 0 {
		if err := e.stateManager.DeleteStack(ctx, stack); err != nil {
			return plan, result, stratoerrors.BackendError("failed to remove empty stack record", err)
		}
	}
	return plan, result, nil
}

// Drift describes one instance whose actual attributes no longer match the
// recorded state.
type Drift struct {
	Identity   string
	Gone       bool
	Attributes []string
}

// Refresh reads every recorded instance through the provider and syncs the
// recorded attributes to reality. It reports what drifted; it never changes
// remote objects to match configuration.
func (e *Engine) Refresh(ctx context.Context, stack string) ([]Drift, error) {
	lock, stackState, err := e.lockStack(ctx, stack, "refresh")
	if err != nil {
		return nil, err
	}
	defer lock.Unlock(context.Background())

	if stackState == nil {
		return nil, stratoerrors.NotFoundError("stack", stack)
	}

	var drifts []Drift
	for _, identity := range sortedResourceIDs(stackState) {
		record := stackState.Resources[identity]

		actual, err := e.prov.Read(ctx, identity)
		if err != nil {
			if errors.Is(err, provider.ErrNotFound) {
				drifts = append(drifts, Drift{Identity: identity, Gone: true})
				stackState.RemoveResource(identity)
				continue
			}
			return nil, stratoerrors.ProviderError(identity, "read", err)
		}

		changed := changedAttrs(record.Attrs, actual)
		if len(changed) > 0 {
			drifts = append(drifts, Drift{Identity: identity, Attributes: changed})
			record.Attrs = actual
			record.UpdatedAt = time.Now().UTC()
		}
	}

	if err := e.stateManager.SaveStack(ctx, stackState); err != nil {
		return nil, stratoerrors.BackendError("failed to save refreshed state", err)
	}
	return drifts, nil
}

func (e *Engine) execute(ctx context.Context, plan *planner.Plan, g *graph.Graph, stackState *types.StackState, dryRun bool) (*executor.Result, error) {
	exec := executor.NewExecutor(e.stateManager, e.prov, executor.Options{
		Parallelism: e.parallelism,
		DryRun:      dryRun,
		Logger:      e.logger,
	})
	return exec.Execute(ctx, plan, g, stackState)
}

func (e *Engine) loadStack(ctx context.Context, stack string) (*types.StackState, error) {
	stackState, err := e.stateManager.GetStack(ctx, stack)
	if err != nil {
		if errors.Is(err, backend.ErrNotFound) {
			return nil, nil
		}
		return nil, stratoerrors.BackendError("failed to load state", err)
	}
	return stackState, nil
}

func (e *Engine) lockStack(ctx context.Context, stack, operation string) (backend.Lock, *types.StackState, error) {
	lock, err := e.stateManager.Lock(ctx, state.LockScope{
		Stack:     stack,
		Operation: operation,
		Who:       whoAmI(),
	})
	if err != nil {
		var lockErr *backend.LockError
		if errors.As(err, &lockErr) {
			return nil, nil, stratoerrors.StateLocked(stratoerrors.LockInfo{
				ID:        lockErr.Info.ID,
				Path:      lockErr.Info.Path,
				Who:       lockErr.Info.Who,
				Operation: lockErr.Info.Operation,
				Created:   lockErr.Info.Created,
			})
		}
		return nil, nil, stratoerrors.BackendError("failed to acquire state lock", err)
	}

	stackState, err := e.loadStack(ctx, stack)
	if err != nil {
		lock.Unlock(context.Background())
		return nil, nil, err
	}
	return lock, stackState, nil
}

func changedAttrs(recorded, actual map[string]interface{}) []string {
	seen := make(map[string]bool)
	var changed []string
	for name, val := range actual {
		seen[name] = true
		old, ok := recorded[name]
		if !ok || fmt.Sprintf("%v", old) != fmt.Sprintf("%v", val) {
			changed = append(changed, name)
		}
	}
	for name := range recorded {
		if !seen[name] {
			changed = append(changed, name)
		}
	}
	sort.Strings(changed)
	return changed
}

func sortedResourceIDs(s *types.StackState) []string {
	ids := make([]string, 0, len(s.Resources))
	for id := range s.Resources {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func stackNameFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func whoAmI() string {
	username := "unknown"
	if u, err := user.Current(); err == nil {
		username = u.Username
	}
	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	return username + "@" + host
}

// ListStacks lists every recorded stack.
func (e *Engine) ListStacks(ctx context.Context) ([]types.StackRef, error) {
	return e.stateManager.ListStacks(ctx)
}

// GetStack returns the recorded state of a stack.
func (e *Engine) GetStack(ctx context.Context, stack string) (*types.StackState, error) {
	stackState, err := e.loadStack(ctx, stack)
	if err != nil {
		return nil, err
	}
	if stackState == nil {
		return nil, stratoerrors.NotFoundError("stack", stack)
	}
	return stackState, nil
}

// ForgetResource removes an instance from recorded state without touching
// the real resource.
func (e *Engine) ForgetResource(ctx context.Context, stack, identity string) error {
	lock, stackState, err := e.lockStack(ctx, stack, "state rm")
	if err != nil {
		return err
	}
	defer lock.Unlock(context.Background())

	if stackState == nil {
		return stratoerrors.NotFoundError("stack", stack)
	}
	if stackState.Resource(identity) == nil {
		return stratoerrors.NotFoundError("resource", identity)
	}

	stackState.RemoveResource(identity)
	if err := e.stateManager.SaveStack(ctx, stackState); err != nil {
		return stratoerrors.BackendError("failed to save state", err)
	}
	return nil
}
