// Package scheduler implements the runtime execution engine (section
// 4.9, section 5): it walks a compiled dag.DagSpec, evaluates inline
// transforms, dispatches module calls through the options.Runtime
// decorator chain, and resolves top-level outputs into a Signal.
//
// Every data node is backed by a dataCell: single-assignment, written
// at most once, with readers blocking until the writer completes it
// (section 3.7). Nodes are evaluated demand-driven, starting from the
// declared outputs and recursing into dependencies — a node never
// needed by any declared output is never computed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"constellation/internal/ctype"
	"constellation/internal/dag"
	"constellation/internal/errs"
	"constellation/internal/logging"
	"constellation/internal/options"
)

var errCancelledWait = fmt.Errorf("wait cancelled: %w", errs.ErrCancelled)

// ModuleImpl is the concrete dispatch target for a runtime module call:
// given its resolved named inputs, it produces the module's single
// output value or an error.
type ModuleImpl func(ctx context.Context, inputs map[string]*ctype.Value) (*ctype.Value, error)

// Scheduler owns the static, reusable execution state for one compiled
// pipeline: its DagSpec, the shared options.Runtime (cache, limiters,
// priority scheduler), and the module dispatch table. Multiple
// Executions may run concurrently against the same Scheduler.
type Scheduler struct {
	Spec    *dag.DagSpec
	Runtime *options.Runtime
	Impls   map[string]ModuleImpl

	DrainTimeout time.Duration

	sem *semaphore.Weighted
}

// New constructs a Scheduler. workers bounds the number of module
// calls and inline-transform evaluations active at once across all
// Executions sharing it (section 4.9: "bounded by global worker
// config").
func New(spec *dag.DagSpec, runtime *options.Runtime, impls map[string]ModuleImpl, workers int, drainTimeout time.Duration) *Scheduler {
	if workers <= 0 {
		workers = 1
	}
	return &Scheduler{
		Spec:         spec,
		Runtime:      runtime,
		Impls:        impls,
		DrainTimeout: drainTimeout,
		sem:          semaphore.NewWeighted(int64(workers)),
	}
}

// Execution is one run's mutable state: the data cells and the
// bookkeeping needed to resume a suspended run without recomputing
// already-completed cells (section 4.9's Resumption contract).
type Execution struct {
	ID        string
	scheduler *Scheduler

	cells map[dag.DataUUID]*dataCell

	mu            sync.Mutex
	startedData   map[dag.DataUUID]bool
	startedModule map[dag.ModuleUUID]bool

	producerOf map[dag.DataUUID]dag.ModuleUUID   // data produced by which module
	consumedBy map[dag.ModuleUUID][]dag.DataUUID // module's input data, by InEdges order

	requiredInputs map[string]*ctype.Type // computed lazily, once
}

// NewExecution creates a fresh Execution over spec (or resumes bookkeeping
// structures for one, if the caller retains it across suspend/resume
// calls — callers that persist executions should keep the *Execution
// itself rather than constructing a new one each time).
func (s *Scheduler) NewExecution(id string) *Execution {
	e := &Execution{
		ID:            id,
		scheduler:     s,
		cells:         make(map[dag.DataUUID]*dataCell, len(s.Spec.Data)),
		startedData:   make(map[dag.DataUUID]bool),
		startedModule: make(map[dag.ModuleUUID]bool),
		producerOf:    make(map[dag.DataUUID]dag.ModuleUUID),
		consumedBy:    make(map[dag.ModuleUUID][]dag.DataUUID),
	}
	for uuid := range s.Spec.Data {
		e.cells[uuid] = newDataCell()
	}
	for _, edge := range s.Spec.OutEdges {
		e.producerOf[edge.Data] = edge.Module
	}
	for _, edge := range s.Spec.InEdges {
		e.consumedBy[edge.Module] = append(e.consumedBy[edge.Module], edge.Data)
	}
	return e
}

// Supply writes externally-provided top-level input values (section
// 4.9: "top-level inputs supplied as Map<String,CValue>") into their
// matching data cells. Supplying a name the spec doesn't declare as an
// input is a no-op; supplying a name twice after it's already been
// written is also a no-op, per the single-assignment discipline.
func (e *Execution) Supply(inputs map[string]*ctype.Value) {
	for uuid, node := range e.scheduler.Spec.Data {
		if node.Name == "" {
			continue
		}
		if v, ok := inputs[node.Name]; ok {
			e.cells[uuid].complete(v)
		}
	}
}

// Run drives the execution to completion, suspension, or failure. It
// may be called more than once on the same Execution after Supply adds
// previously-missing inputs (resumption preserves every cell already
// completed by a prior call).
func (e *Execution) Run(ctx context.Context) *Signal {
	if e.requiredInputs == nil {
		e.requiredInputs = e.computeRequiredInputs()
	}

	missing := map[string]*ctype.Type{}
	for name, t := range e.requiredInputs {
		uuid := e.inputUUID(name)
		if uuid == "" || !e.cells[uuid].ready() {
			missing[name] = t
		}
	}
	if len(missing) > 0 {
		return &Signal{ExecutionID: e.ID, Status: StatusSuspended, Missing: missing}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	for _, name := range e.scheduler.Spec.DeclaredOutputs {
		uuid, ok := e.scheduler.Spec.OutputBindings[name]
		if !ok {
			continue
		}
		wg.Add(1)
		go func(uuid dag.DataUUID) {
			defer wg.Done()
			e.ensure(ctx, done, uuid)
		}(uuid)
	}

	waited := make(chan struct{})
	go func() {
		wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
	case <-ctx.Done():
		timer := time.NewTimer(e.scheduler.DrainTimeout)
		defer timer.Stop()
		select {
		case <-waited:
		case <-timer.C:
			close(done)
			return &Signal{ExecutionID: e.ID, Status: StatusFailed, Err: fmt.Errorf("run drain timed out: %w", errs.ErrCancelled)}
		}
	}

	outputs := map[string]*ctype.Value{}
	var firstErr error
	for _, name := range e.scheduler.Spec.DeclaredOutputs {
		uuid, ok := e.scheduler.Spec.OutputBindings[name]
		if !ok {
			continue
		}
		v, err := e.cells[uuid].get(done)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		outputs[name] = v
	}

	if firstErr != nil {
		return &Signal{ExecutionID: e.ID, Status: StatusFailed, Outputs: outputs, Err: firstErr}
	}
	return &Signal{ExecutionID: e.ID, Status: StatusCompleted, Outputs: outputs}
}

func (e *Execution) inputUUID(name string) dag.DataUUID {
	for uuid, node := range e.scheduler.Spec.Data {
		if node.Name == name {
			return uuid
		}
	}
	return ""
}

// computeRequiredInputs walks backward from the declared outputs,
// collecting every top-level input the run actually needs (section
// 4.9's suspension condition is sound precisely because this graph is
// acyclic: the only way a needed cell never completes is a missing
// top-level input).
func (e *Execution) computeRequiredInputs() map[string]*ctype.Type {
	required := map[string]*ctype.Type{}
	visited := map[dag.DataUUID]bool{}

	var walk func(uuid dag.DataUUID)
	walk = func(uuid dag.DataUUID) {
		if visited[uuid] {
			return
		}
		visited[uuid] = true
		node := e.scheduler.Spec.Data[uuid]
		if node == nil {
			return
		}
		if node.Name != "" {
			required[node.Name] = node.CType
			return
		}
		if node.InlineTransform != nil {
			for _, dep := range node.TransformInputs {
				walk(dep)
			}
			return
		}
		if module, ok := e.producerOf[uuid]; ok {
			for _, dep := range e.consumedBy[module] {
				walk(dep)
			}
		}
	}

	for _, uuid := range e.scheduler.Spec.OutputBindings {
		walk(uuid)
	}
	return required
}

// ensure makes sure the data node at uuid is being computed (starting
// it at most once, even across repeated Run calls on the same
// Execution) and blocks until it reaches a terminal state.
func (e *Execution) ensure(ctx context.Context, done chan struct{}, uuid dag.DataUUID) (*ctype.Value, error) {
	node := e.scheduler.Spec.Data[uuid]
	cell := e.cells[uuid]

	if node != nil && node.Name != "" {
		return cell.get(done)
	}

	if node != nil && node.InlineTransform != nil {
		e.startInline(ctx, done, uuid, node)
		return cell.get(done)
	}

	if module, ok := e.producerOf[uuid]; ok {
		e.startModule(ctx, done, module)
		return cell.get(done)
	}

	return cell.get(done)
}

func (e *Execution) startInline(ctx context.Context, done chan struct{}, uuid dag.DataUUID, node *dag.DataNodeSpec) {
	e.mu.Lock()
	if e.startedData[uuid] {
		e.mu.Unlock()
		return
	}
	e.startedData[uuid] = true
	e.mu.Unlock()

	go func() {
		inputs := map[string]*ctype.Value{}
		for key, dep := range node.TransformInputs {
			v, err := e.ensure(ctx, done, dep)
			if err != nil {
				e.cells[uuid].fail(fmt.Errorf("evaluating input %q: %w", key, err))
				return
			}
			inputs[key] = v
		}
		if err := e.scheduler.sem.Acquire(ctx, 1); err != nil {
			e.cells[uuid].fail(fmt.Errorf("%w", errs.ErrCancelled))
			return
		}
		v, err := evalInline(node.InlineTransform, inputs, node.CType)
		e.scheduler.sem.Release(1)
		if err != nil {
			e.cells[uuid].fail(err)
			return
		}
		e.cells[uuid].complete(v)
	}()
}

func (e *Execution) startModule(ctx context.Context, done chan struct{}, module dag.ModuleUUID) {
	e.mu.Lock()
	if e.startedModule[module] {
		e.mu.Unlock()
		return
	}
	e.startedModule[module] = true
	e.mu.Unlock()

	spec := e.scheduler.Spec.Modules[module]
	var outUUID dag.DataUUID
	for _, edge := range e.scheduler.Spec.OutEdges {
		if edge.Module == module {
			outUUID = edge.Data
			break
		}
	}
	outCell := e.cells[outUUID]

	go func() {
		inputs := map[string]*ctype.Value{}
		for _, dep := range e.consumedBy[module] {
			depNode := e.scheduler.Spec.Data[dep]
			name := depNode.Nicknames[module]
			v, err := e.ensure(ctx, done, dep)
			if err != nil {
				outCell.fail(fmt.Errorf("module %q: resolving input %q: %w", spec.Metadata.Name, name, err))
				return
			}
			inputs[name] = v
		}

		if spec.Synthetic && spec.Branch != nil {
			v, err := e.evalBranch(spec.Branch, inputs)
			if err != nil {
				outCell.fail(err)
				return
			}
			outCell.complete(v)
			return
		}

		impl, ok := e.scheduler.Impls[spec.Metadata.Name]
		if !ok {
			outCell.fail(fmt.Errorf("no runtime implementation registered for module %q", spec.Metadata.Name))
			return
		}

		opts := e.scheduler.Spec.ModuleOptions[module]
		var fallback *ctype.Value
		if opts.HasFallback {
			if fbUUID, ok := e.scheduler.Spec.ModuleFallbacks[module]; ok {
				fb, err := e.ensure(ctx, done, fbUUID)
				if err == nil {
					fallback = fb
				}
			}
		}

		cacheKey := cacheKeyFor(spec.Metadata.Name, inputs)
		if err := e.scheduler.sem.Acquire(ctx, 1); err != nil {
			outCell.fail(fmt.Errorf("%w", errs.ErrCancelled))
			return
		}
		v, err := e.scheduler.Runtime.Invoke(ctx, spec.Metadata.Name, opts, cacheKey, fallback, spec.Produces["out"],
			func(ctx context.Context) (*ctype.Value, error) {
				return impl(ctx, inputs)
			})
		e.scheduler.sem.Release(1)
		if err != nil {
			logging.SchedulerError("module %q failed: %v", spec.Metadata.Name, err)
			outCell.fail(fmt.Errorf("module %q: %w", spec.Metadata.Name, err))
			return
		}
		outCell.complete(v)
	}()
}

// evalBranch evaluates a lowered Branch's condition/expression pairs in
// order (section 3.5): first true condition wins, falling through to
// otherwise.
func (e *Execution) evalBranch(b *dag.BranchSpec, inputs map[string]*ctype.Value) (*ctype.Value, error) {
	for i := range b.CondData {
		cond, ok := inputs[fmt.Sprintf("cond%d", i)]
		if !ok {
			return nil, fmt.Errorf("branch: missing condition %d", i)
		}
		if cond.Bool() {
			expr, ok := inputs[fmt.Sprintf("expr%d", i)]
			if !ok {
				return nil, fmt.Errorf("branch: missing expression %d", i)
			}
			return expr, nil
		}
	}
	otherwise, ok := inputs["otherwise"]
	if !ok {
		return nil, fmt.Errorf("branch: missing otherwise arm")
	}
	return otherwise, nil
}

// cacheKeyFor canonicalizes a module call's resolved inputs into the
// options executor's per-call cache key (section 4.7 item 5): the
// module name plus each parameter's display form, sorted by name so
// key order never affects the key.
func cacheKeyFor(moduleName string, inputs map[string]*ctype.Value) string {
	keys := make([]string, 0, len(inputs))
	for k := range inputs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	key := moduleName
	for _, k := range keys {
		key += "|" + k + "=" + displayString(inputs[k])
	}
	return key
}

// IsSuspended reports whether err (or something it wraps) signals a
// suspended run.
func IsSuspended(err error) bool { return errors.Is(err, errs.ErrSuspended) }
