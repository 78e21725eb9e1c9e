package gradtape

import (
	"fmt"

	"github.com/hupe1980/gradtape/adjoint"
	"github.com/hupe1980/gradtape/index"
	"github.com/hupe1980/gradtape/internal/chunk"
	"github.com/hupe1980/gradtape/llf"
	"github.com/hupe1980/gradtape/model"
	"github.com/hupe1980/gradtape/resource"
)

// llfRecord is one embedded low-level-function call: the registry token plus
// the byte sizes of its payloads in the fixed and dynamic stores.
type llfRecord struct {
	Token     llf.Token
	FixedSize uint32
	DynSize   uint32
}

// Position identifies a point in a tape's recorded sequence. It is a
// composite of one sub-cursor per backing store, advanced atomically as a
// group per statement. A Position is valid only relative to the tape that
// produced it and only while no truncation beyond it has occurred.
type Position struct {
	Stmt  chunk.Position
	Jac   chunk.Position
	Token chunk.Position
	Fixed chunk.Position
	Dyn   chunk.Position
}

// Before reports whether p is strictly before q in recording order.
func (p Position) Before(q Position) bool {
	return p.Stmt.Before(q.Stmt)
}

// After reports whether p is strictly after q in recording order.
func (p Position) After(q Position) bool {
	return p.Stmt.After(q.Stmt)
}

// Tape is the recorded statement sequence plus its supporting stores.
//
// The index-management policy M is selected statically at construction; see
// NewLinear and NewReuse. A tape is not internally thread-safe: exactly one
// goroutine may record into or evaluate a given tape at a time.
type Tape[M index.Manager] struct {
	indices M

	statements *chunk.Store[model.Statement]
	jacobians  *chunk.Store[model.JacobianEntry]
	llfTokens  *chunk.Store[llfRecord]
	llfFixed   *chunk.Store[byte]
	llfDyn     *chunk.Store[byte]

	adjoints *adjoint.Vector
	primals  *adjoint.Vector

	registry *llf.Registry
	active   bool

	opts options
}

// New creates a tape driven by the given index manager. Most callers should
// use NewLinear or NewReuse.
func New[M index.Manager](indices M, optFns ...Option) *Tape[M] {
	o := applyOptions(optFns)

	var budget chunk.Budget
	if o.controller != nil {
		budget = controllerBudget{c: o.controller}
	}

	registry := o.registry
	if registry == nil {
		registry = llf.NewRegistry()
	}

	t := &Tape[M]{
		indices:    indices,
		statements: chunk.New[model.Statement](o.chunkSize, budget),
		jacobians:  chunk.New[model.JacobianEntry](o.chunkSize, budget),
		llfTokens:  chunk.New[llfRecord](o.chunkSize, budget),
		llfFixed:   chunk.New[byte](o.chunkSize, budget),
		llfDyn:     chunk.New[byte](o.chunkSize, budget),
		adjoints:   adjoint.New(o.adjointCapacity),
		primals:    adjoint.New(o.adjointCapacity),
		registry:   registry,
		opts:       o,
	}
	if o.adjointGuard != nil {
		t.adjoints.SetGuard(o.adjointGuard)
	}
	t.opts.logger = o.logger.WithPolicy(indices.IsLinear())
	return t
}

// NewLinear creates a tape with a linear index policy: identifiers increase
// monotonically and are never reused.
func NewLinear(optFns ...Option) *Tape[*index.LinearManager] {
	return New(index.NewLinear(), optFns...)
}

// NewReuse creates a tape with a reuse index policy: retired identifiers are
// recycled from a free list.
func NewReuse(optFns ...Option) *Tape[*index.ReuseManager] {
	return New(index.NewReuse(), optFns...)
}

// newStoreLike creates an empty store with the same configuration as src.
func newStoreLike[T any](_ *chunk.Store[T], o options) *chunk.Store[T] {
	var budget chunk.Budget
	if o.controller != nil {
		budget = controllerBudget{c: o.controller}
	}
	return chunk.New[T](o.chunkSize, budget)
}

// controllerBudget adapts a resource.Controller to the chunk store's Budget.
type controllerBudget struct {
	c *resource.Controller
}

func (b controllerBudget) Acquire(bytes int64) bool { return b.c.TryAcquireMemory(bytes) }
func (b controllerBudget) Release(bytes int64)      { b.c.ReleaseMemory(bytes) }

// IndexManager returns the tape's index manager.
func (t *Tape[M]) IndexManager() M {
	return t.indices
}

// Registry returns the tape's low-level-function registry.
func (t *Tape[M]) Registry() *llf.Registry {
	return t.registry
}

// Adjoints returns the tape's adjoint vector for direct manipulation, e.g.
// for bulk seeding inside a BeginUse/EndUse bracket.
func (t *Tape[M]) Adjoints() *adjoint.Vector {
	return t.adjoints
}

// SetActive starts recording. Statements stored while the tape is passive
// are discarded.
func (t *Tape[M]) SetActive() {
	t.active = true
}

// SetPassive stops recording.
func (t *Tape[M]) SetPassive() {
	t.active = false
}

// IsActive reports whether the tape is recording.
func (t *Tape[M]) IsActive() bool {
	return t.active
}

// RegisterInput issues an identifier for a differentiable input and records
// its primal value.
func (t *Tape[M]) RegisterInput(primal float64) model.Identifier {
	id := t.indices.Generate()
	t.primals.Set(id, primal)
	return id
}

// DestroyIdentifier retires an identifier. Valid only under the reuse
// policy; linear managers panic.
func (t *Tape[M]) DestroyIdentifier(id model.Identifier) {
	t.indices.Free(id)
}

// StoreStatement records one elementary assignment: the output identifier
// and the already-evaluated (coefficient, input-identifier) list supplied by
// the front end. Entry order is preserved through replay. Statements with no
// entries are not recorded.
//
// The recording path never computes a derivative coefficient itself.
func (t *Tape[M]) StoreStatement(lhs model.Identifier, entries []model.JacobianEntry) {
	if !t.active || len(entries) == 0 {
		return
	}
	if len(entries) > model.MaxArguments {
		panic(fmt.Sprintf("gradtape: statement with %d entries exceeds the argument limit", len(entries)))
	}

	t.statements.ReserveItems(1)
	t.jacobians.ReserveItems(len(entries))

	for _, e := range entries {
		t.jacobians.Push(e)
	}
	t.statements.Push(model.Statement{LHS: lhs, Args: model.ArgumentSize(len(entries))})

	t.opts.metricsCollector.RecordStatement(len(entries))
}

// PushLowLevelFunction embeds an opaque low-level-function call in the
// statement sequence. The payload bytes are copied into the tape's stores;
// token must resolve against the tape's registry.
func (t *Tape[M]) PushLowLevelFunction(token llf.Token, fixed, dynamic []byte) {
	if !t.active {
		return
	}
	if _, ok := t.registry.Lookup(token); !ok {
		panic(fmt.Sprintf("gradtape: low-level-function token %d is not registered", token))
	}

	t.pushLowLevelRecord(token, fixed, dynamic)
	t.opts.metricsCollector.RecordLowLevelFunction(len(fixed), len(dynamic))
}

// pushLowLevelRecord appends a low-level-function record without the
// activity and registry checks. Shared by recording and append.
func (t *Tape[M]) pushLowLevelRecord(token llf.Token, fixed, dynamic []byte) {
	t.llfTokens.ReserveItems(1)
	t.llfTokens.Push(llfRecord{
		Token:     token,
		FixedSize: uint32(len(fixed)),
		DynSize:   uint32(len(dynamic)),
	})
	copy(t.llfFixed.Alloc(len(fixed)), fixed)
	copy(t.llfDyn.Alloc(len(dynamic)), dynamic)

	t.statements.ReserveItems(1)
	t.statements.Push(model.Statement{LHS: model.InvalidIdentifier, Args: model.LowLevelFunctionTag})
}

// Position captures the current write cursor of all stores as one composite
// position.
func (t *Tape[M]) Position() Position {
	return Position{
		Stmt:  t.statements.Position(),
		Jac:   t.jacobians.Position(),
		Token: t.llfTokens.Position(),
		Fixed: t.llfFixed.Position(),
		Dyn:   t.llfDyn.Position(),
	}
}

// ZeroPosition returns the position before the first recorded statement.
func (t *Tape[M]) ZeroPosition() Position {
	return Position{
		Stmt:  t.statements.ZeroPosition(),
		Jac:   t.jacobians.ZeroPosition(),
		Token: t.llfTokens.ZeroPosition(),
		Fixed: t.llfFixed.ZeroPosition(),
		Dyn:   t.llfDyn.ZeroPosition(),
	}
}

// ResetTo logically truncates the tape after pos. Backing chunks are
// retained for reuse. Adjoints are untouched; use ClearAdjoints first if the
// truncated range seeded any.
func (t *Tape[M]) ResetTo(pos Position) {
	t.statements.ResetTo(pos.Stmt)
	t.jacobians.ResetTo(pos.Jac)
	t.llfTokens.ResetTo(pos.Token)
	t.llfFixed.ResetTo(pos.Fixed)
	t.llfDyn.ResetTo(pos.Dyn)
}

// Reset truncates the tape to empty, clears all adjoints and primals, and
// restarts identifier issuance.
func (t *Tape[M]) Reset() {
	n := t.statements.Len()
	t.ResetTo(t.ZeroPosition())
	t.indices.Reset()
	t.adjoints.Clear()
	t.primals.Clear()
	t.opts.logger.LogReset(n)
}

// resetStores truncates the backing stores only, leaving identifier and
// derivative state alone. Used on scratch tapes during editing.
func (t *Tape[M]) resetStores() {
	t.ResetTo(t.ZeroPosition())
}

// Stats is a snapshot of tape size counters.
type Stats struct {
	Statements        int
	JacobianEntries   int
	LowLevelFunctions int
	PayloadBytes      int
	AdjointSlots      int
	MemoryBytes       int64
}

// Stats returns the tape's current size counters.
func (t *Tape[M]) Stats() Stats {
	return Stats{
		Statements:        t.statements.Len(),
		JacobianEntries:   t.jacobians.Len(),
		LowLevelFunctions: t.llfTokens.Len(),
		PayloadBytes:      t.llfFixed.Len() + t.llfDyn.Len(),
		AdjointSlots:      t.adjoints.Size(),
		MemoryBytes: t.statements.SizeBytes() + t.jacobians.SizeBytes() +
			t.llfTokens.SizeBytes() + t.llfFixed.SizeBytes() + t.llfDyn.SizeBytes(),
	}
}

// Gradient returns the accumulated derivative for id with bounds checking.
// Reading an unknown identifier is defined behavior and yields zero.
func (t *Tape[M]) Gradient(id model.Identifier) float64 {
	return t.adjoints.At(id)
}

// SetGradient stores a derivative value for id, growing the adjoint vector
// on demand.
func (t *Tape[M]) SetGradient(id model.Identifier, val float64) {
	t.adjoints.Set(id, val)
}

// GradientUnchecked returns the derivative for id without bounds checking.
// The caller guarantees capacity, usually via a preceding ResizeAdjoints.
func (t *Tape[M]) GradientUnchecked(id model.Identifier) float64 {
	return t.adjoints.AtUnchecked(id)
}

// SetGradientUnchecked stores a derivative value without bounds checking.
func (t *Tape[M]) SetGradientUnchecked(id model.Identifier, val float64) {
	t.adjoints.SetUnchecked(id, val)
}

// ResizeAdjoints grows the adjoint vector to cover every identifier issued
// so far, enabling unchecked access.
func (t *Tape[M]) ResizeAdjoints() {
	t.adjoints.EnsureCapacity(int(t.indices.LargestCreated()) + 1)
}

// Primal returns the recorded primal value for id.
func (t *Tape[M]) Primal(id model.Identifier) float64 {
	return t.primals.At(id)
}

// SetPrimal updates the recorded primal value for id.
func (t *Tape[M]) SetPrimal(id model.Identifier, val float64) {
	t.primals.Set(id, val)
}
