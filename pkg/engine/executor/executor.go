// Package executor applies execution plans against a provider, walking the
// graph in dependency waves with bounded parallelism.
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/strato-labs/stratoctl/pkg/engine/diff"
	"github.com/strato-labs/stratoctl/pkg/engine/planner"
	"github.com/strato-labs/stratoctl/pkg/errors"
	"github.com/strato-labs/stratoctl/pkg/graph"
	"github.com/strato-labs/stratoctl/pkg/provider"
	"github.com/strato-labs/stratoctl/pkg/state"
	"github.com/strato-labs/stratoctl/pkg/state/types"
)

// Result summarizes one execution.
type Result struct {
	Success  bool
	Duration time.Duration

	Created  int
	Updated  int
	Replaced int
	Deleted  int
	Failed   int
	Blocked  int

	Errors      []error
	NodeResults map[string]*NodeResult
}

// NodeResult is the outcome for one resource instance.
type NodeResult struct {
	Identity string
	Action   diff.Action
	Success  bool
	Blocked  bool
	Duration time.Duration
	Error    error
	Attrs    map[string]interface{}
}

// Options configures the executor.
type Options struct {
	// Parallelism bounds concurrent provider operations.
	Parallelism int

	// DryRun skips provider calls and state writes.
	DryRun bool

	Logger zerolog.Logger
}

// DefaultOptions returns the executor defaults.
func DefaultOptions() Options {
	return Options{Parallelism: 10, Logger: zerolog.Nop()}
}

// Executor applies plans. State writes are serialized; the stack record is
// persisted even when execution fails or is cancelled partway, so it always
// reflects what actually happened.
type Executor struct {
	stateManager state.Manager
	prov         provider.Provider
	options      Options
}

// NewExecutor creates an executor.
func NewExecutor(stateManager state.Manager, prov provider.Provider, options Options) *Executor {
	if options.Parallelism <= 0 {
		options.Parallelism = 10
	}
	return &Executor{
		stateManager: stateManager,
		prov:         prov,
		options:      options,
	}
}

// Execute applies the plan. Instances whose dependencies all succeeded run
// concurrently; an instance whose dependency failed is never attempted and
// is reported as blocked. Cancellation stops new work but lets in-flight
// operations reach a terminal state before the stack record is saved.
func (e *Executor) Execute(ctx context.Context, plan *planner.Plan, g *graph.Graph, stackState *types.StackState) (*Result, error) {
	start := time.Now()
	result := &Result{
		Success:     true,
		NodeResults: make(map[string]*NodeResult),
	}

	if plan.IsEmpty() {
		result.Duration = time.Since(start)
		return result, nil
	}

	var mu sync.Mutex // guards result and stackState
	sem := make(chan struct{}, e.options.Parallelism)

	succeeded := make(map[string]bool)
	failed := make(map[string]bool)

	pending := make(map[string]*planner.PlannedChange)
	var orphans []*planner.PlannedChange
	for _, pc := range plan.Changes {
		if pc.Change.Action == diff.ActionNoop {
			result.NodeResults[pc.Change.Identity] = &NodeResult{
				Identity: pc.Change.Identity,
				Action:   diff.ActionNoop,
				Success:  true,
			}
			// An unchanged resource still satisfies its dependents.
			if pc.Node != nil {
				pc.Node.State = graph.NodeStateSucceeded
				succeeded[pc.Node.ID] = true
			}
			continue
		}
		if pc.Node == nil {
			orphans = append(orphans, pc)
			continue
		}
		pending[pc.Node.ID] = pc
	}

	cancelled := false

	for len(pending) > 0 {
		if ctx.Err() != nil {
			cancelled = true
			break
		}

		// Block instances whose dependency failed, then collect the ready
		// wave.
		var ready []*planner.PlannedChange
		for id, pc := range pending {
			isReady := true
			for _, dep := range e.waitOn(pc.Node, g) {
				if failed[dep] {
					mu.Lock()
					result.NodeResults[id] = &NodeResult{
						Identity: id,
						Action:   pc.Change.Action,
						Blocked:  true,
						Error:    fmt.Errorf("blocked: dependency %s failed", dep),
					}
					result.Blocked++
					result.Success = false
					mu.Unlock()
					pc.Node.State = graph.NodeStateBlocked
					delete(pending, id)
					failed[id] = true
					isReady = false
					break
				}
				if !succeeded[dep] {
					isReady = false
					break
				}
			}
			if isReady {
				ready = append(ready, pc)
			}
		}

		if len(ready) == 0 {
			break
		}

		var wg sync.WaitGroup
		for _, pc := range ready {
			delete(pending, pc.Node.ID)
			pc.Node.State = graph.NodeStateRunning

			wg.Add(1)
			sem <- struct{}{}
			go func(pc *planner.PlannedChange) {
				defer wg.Done()
				defer func() { <-sem }()

				nodeResult := e.executeChange(ctx, pc, stackState, &mu)

				mu.Lock()
				result.NodeResults[pc.Node.ID] = nodeResult
				e.tally(result, nodeResult)
				if nodeResult.Success {
					succeeded[pc.Node.ID] = true
					pc.Node.State = graph.NodeStateSucceeded
				} else {
					failed[pc.Node.ID] = true
					result.Success = false
					result.Errors = append(result.Errors, nodeResult.Error)
					pc.Node.State = graph.NodeStateFailed
				}
				mu.Unlock()
			}(pc)
		}
		wg.Wait()
	}

	// Anything still pending after the loop never got a chance to run.
	for id, pc := range pending {
		result.NodeResults[id] = &NodeResult{
			Identity: id,
			Action:   pc.Change.Action,
			Blocked:  true,
			Error:    fmt.Errorf("blocked: execution stopped before %s could run", id),
		}
		result.Blocked++
		result.Success = false
		pc.Node.State = graph.NodeStateBlocked
	}

	// Orphan deletes have no graph dependencies; run them unless execution
	// was cancelled.
	if !cancelled {
		var wg sync.WaitGroup
		for _, pc := range orphans {
			wg.Add(1)
			sem <- struct{}{}
			go func(pc *planner.PlannedChange) {
				defer wg.Done()
				defer func() { <-sem }()

				nodeResult := e.executeChange(ctx, pc, stackState, &mu)

				mu.Lock()
				result.NodeResults[pc.Change.Identity] = nodeResult
				e.tally(result, nodeResult)
				if !nodeResult.Success {
					result.Success = false
					result.Errors = append(result.Errors, nodeResult.Error)
				}
				mu.Unlock()
			}(pc)
		}
		wg.Wait()
	} else {
		result.Success = false
		result.Errors = append(result.Errors, ctx.Err())
	}

	if result.Success {
		stackState.Status = types.StackStatusReady
	} else {
		stackState.Status = types.StackStatusFailed
	}

	if !e.options.DryRun {
		// Save with a fresh context; the caller's may already be cancelled.
		saveCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := e.stateManager.SaveStack(saveCtx, stackState); err != nil {
			result.Success = false
			result.Errors = append(result.Errors, errors.BackendError("failed to save state", err))
		}
	}

	result.Duration = time.Since(start)
	return result, nil
}

// waitOn returns the resource dependencies an instance must wait for. Data
// source dependencies were satisfied during resolution.
func (e *Executor) waitOn(node *graph.Node, g *graph.Graph) []string {
	var deps []string
	for _, dep := range node.DependsOn {
		if depNode := g.GetNode(dep); depNode != nil && depNode.Kind == graph.NodeKindResource {
			deps = append(deps, dep)
		}
	}
	return deps
}

func (e *Executor) tally(result *Result, nr *NodeResult) {
	switch nr.Action {
	case diff.ActionCreate:
		if nr.Success {
			result.Created++
		} else {
			result.Failed++
		}
	case diff.ActionUpdate:
		if nr.Success {
			result.Updated++
		} else {
			result.Failed++
		}
	case diff.ActionReplace:
		if nr.Success {
			result.Replaced++
		} else {
			result.Failed++
		}
	case diff.ActionDelete:
		if nr.Success {
			result.Deleted++
		} else {
			result.Failed++
		}
	}
}

func (e *Executor) executeChange(ctx context.Context, pc *planner.PlannedChange, stackState *types.StackState, mu *sync.Mutex) *NodeResult {
	start := time.Now()
	identity := pc.Change.Identity
	result := &NodeResult{
		Identity: identity,
		Action:   pc.Change.Action,
	}

	logger := e.options.Logger.With().
		Str("identity", identity).
		Str("action", string(pc.Change.Action)).
		Logger()

	if e.options.DryRun {
		result.Success = true
		result.Duration = time.Since(start)
		return result
	}

	logger.Debug().Msg("starting operation")

	var attrs map[string]interface{}
	var err error

	switch pc.Change.Action {
	case diff.ActionCreate:
		attrs, err = e.prov.Create(ctx, identity, pc.Change.ResourceType, pc.Desired)
	case diff.ActionUpdate:
		attrs, err = e.prov.Update(ctx, identity, pc.Desired)
	case diff.ActionReplace:
		// Replace is destroy then create; the object is gone between the
		// two calls.
		if err = e.prov.Destroy(ctx, identity); err == nil {
			attrs, err = e.prov.Create(ctx, identity, pc.Change.ResourceType, pc.Desired)
		}
	case diff.ActionDelete:
		err = e.prov.Destroy(ctx, identity)
	}

	mu.Lock()
	defer mu.Unlock()

	if err != nil {
		result.Error = errors.ProviderError(identity, string(pc.Change.Action), err)
		logger.Error().Err(err).Msg("operation failed")

		// Record what is known so the next plan starts from reality.
		record := stackState.Resource(identity)
		if record == nil && pc.Node != nil {
			record = &types.ResourceState{
				Identity:  identity,
				Type:      pc.Node.ResourceType,
				Name:      pc.Node.Name,
				Index:     pc.Node.Index,
				CreatedAt: time.Now().UTC(),
			}
			stackState.SetResource(record)
		}
		if record != nil {
			record.Status = types.ResourceStatusTainted
			record.StatusReason = err.Error()
			record.UpdatedAt = time.Now().UTC()
		}

		result.Duration = time.Since(start)
		return result
	}

	result.Success = true
	result.Attrs = attrs
	logger.Debug().Dur("took", time.Since(start)).Msg("operation succeeded")

	if pc.Change.Action == diff.ActionDelete {
		stackState.RemoveResource(identity)
	} else {
		record := stackState.Resource(identity)
		now := time.Now().UTC()
		if record == nil {
			record = &types.ResourceState{
				Identity:  identity,
				CreatedAt: now,
			}
			if pc.Node != nil {
				record.Type = pc.Node.ResourceType
				record.Name = pc.Node.Name
				record.Index = pc.Node.Index
			}
			stackState.SetResource(record)
		}
		record.Status = types.ResourceStatusCreated
		record.StatusReason = ""
		record.Attrs = attrs
		record.UpdatedAt = now
	}

	result.Duration = time.Since(start)
	return result
}
