package gradtape

import (
	"fmt"
	"time"

	"github.com/hupe1980/gradtape/adjoint"
	"github.com/hupe1980/gradtape/llf"
	"github.com/hupe1980/gradtape/model"
)

// vectorAccess adapts the tape's adjoint and primal vectors for low-level
// function callbacks. All accesses are bounds-checked.
type vectorAccess struct {
	adjoints *adjoint.Vector
	primals  *adjoint.Vector
}

func (va *vectorAccess) Gradient(id model.Identifier) float64 {
	return va.adjoints.At(id)
}

func (va *vectorAccess) SetGradient(id model.Identifier, val float64) {
	va.adjoints.Set(id, val)
}

func (va *vectorAccess) AddGradient(id model.Identifier, val float64) {
	va.adjoints.Add(id, val)
}

func (va *vectorAccess) Primal(id model.Identifier) float64 {
	return va.primals.At(id)
}

func (va *vectorAccess) SetPrimal(id model.Identifier, val float64) {
	va.primals.Set(id, val)
}

var _ llf.VectorAccess = (*vectorAccess)(nil)

// Evaluate reverse-replays the whole tape, accumulating adjoints from the
// seeded outputs back to the inputs.
func (t *Tape[M]) Evaluate() {
	t.EvaluateReverse(t.Position(), t.ZeroPosition())
}

// EvaluateReverse replays the statements in [end, start) in reverse
// recording order; start is the later position.
//
// For a statement with output L and entries {(c_i, id_i)}: the adjoint g of
// L is read, the notification hook fires with (L, g), the slot is cleared
// under the reuse policy, and then adjoint[id_i] += g*c_i is applied in
// recorded entry order. The clear precedes accumulation so that a statement
// whose output also appears among its inputs accumulates correctly. No
// reordering or associativity-exploiting optimization is applied; recorded
// entry order determines rounding.
func (t *Tape[M]) EvaluateReverse(start, end Position) {
	began := time.Now()

	t.adjoints.BeginUse()
	defer t.adjoints.EndUse()

	t.adjoints.EnsureCapacity(int(t.indices.LargestCreated()) + 1)

	adjoints := t.adjoints
	linear := t.indices.IsLinear()
	listener := t.opts.listener
	va := &vectorAccess{adjoints: t.adjoints, primals: t.primals}

	jac := t.jacobians.CursorAt(start.Jac)
	toks := t.llfTokens.CursorAt(start.Token)
	fixed := t.llfFixed.CursorAt(start.Fixed)
	dyn := t.llfDyn.CursorAt(start.Dyn)

	statements := 0
	t.statements.ForEachReverse(start.Stmt, end.Stmt, func(run []model.Statement) {
		statements += len(run)
		for i := len(run) - 1; i >= 0; i-- {
			st := run[i]

			if st.IsLowLevelFunction() {
				rec := toks.TakeBack(1)[0]
				f := fixed.TakeBack(int(rec.FixedSize))
				d := dyn.TakeBack(int(rec.DynSize))
				if fn := t.lookupLLF(rec.Token).Reverse; fn != nil {
					fn(f, d, va)
				}
				continue
			}

			g := adjoints.AtUnchecked(st.LHS)
			if listener != nil {
				listener(st.LHS, g)
			}
			if !linear {
				adjoints.SetUnchecked(st.LHS, 0)
			}

			entries := jac.TakeBack(int(st.Args))
			if g != 0 {
				for _, e := range entries {
					adjoints.AddUnchecked(e.ID, g*e.Coeff)
				}
			}
		}
	})

	t.opts.metricsCollector.RecordEvaluate(DirectionReverse, statements, time.Since(began))
	t.opts.logger.LogEvaluate(DirectionReverse, statements, time.Since(began))
}

// EvaluateForwardFull forward-replays the whole tape, propagating seeded
// tangents from the inputs to the outputs.
func (t *Tape[M]) EvaluateForwardFull() {
	t.EvaluateForward(t.ZeroPosition(), t.Position())
}

// EvaluateForward replays the statements in [start, end) in original
// recording order. Each statement overwrites its output's slot with
// sum(c_i * adjoint[id_i]); it never accumulates, since the output is
// freshly (re)defined.
func (t *Tape[M]) EvaluateForward(start, end Position) {
	began := time.Now()

	t.adjoints.BeginUse()
	defer t.adjoints.EndUse()

	t.adjoints.EnsureCapacity(int(t.indices.LargestCreated()) + 1)

	adjoints := t.adjoints
	listener := t.opts.listener
	va := &vectorAccess{adjoints: t.adjoints, primals: t.primals}

	jac := t.jacobians.CursorAt(start.Jac)
	toks := t.llfTokens.CursorAt(start.Token)
	fixed := t.llfFixed.CursorAt(start.Fixed)
	dyn := t.llfDyn.CursorAt(start.Dyn)

	statements := 0
	t.statements.ForEach(start.Stmt, end.Stmt, func(run []model.Statement) {
		statements += len(run)
		for _, st := range run {
			if st.IsLowLevelFunction() {
				rec := toks.Take(1)[0]
				f := fixed.Take(int(rec.FixedSize))
				d := dyn.Take(int(rec.DynSize))
				if fn := t.lookupLLF(rec.Token).Forward; fn != nil {
					fn(f, d, va)
				}
				continue
			}

			entries := jac.Take(int(st.Args))
			var lhs float64
			for _, e := range entries {
				lhs += e.Coeff * adjoints.AtUnchecked(e.ID)
			}

			adjoints.SetUnchecked(st.LHS, lhs)
			if listener != nil {
				listener(st.LHS, lhs)
			}
		}
	})

	t.opts.metricsCollector.RecordEvaluate(DirectionForward, statements, time.Since(began))
	t.opts.logger.LogEvaluate(DirectionForward, statements, time.Since(began))
}

// ClearAdjoints zeroes the adjoint slots of every statement output in
// [end, start); start is the later position. Slots beyond the current
// adjoint capacity are skipped.
func (t *Tape[M]) ClearAdjoints(start, end Position) {
	t.adjoints.BeginUse()
	defer t.adjoints.EndUse()

	size := t.adjoints.Size()
	t.statements.ForEachReverse(start.Stmt, end.Stmt, func(run []model.Statement) {
		for i := len(run) - 1; i >= 0; i-- {
			st := run[i]
			if st.IsLowLevelFunction() {
				continue
			}
			if int(st.LHS) < size {
				t.adjoints.SetUnchecked(st.LHS, 0)
			}
		}
	})
}

// ClearAllAdjoints zeroes the whole adjoint vector.
func (t *Tape[M]) ClearAllAdjoints() {
	t.adjoints.BeginUse()
	defer t.adjoints.EndUse()
	t.adjoints.Clear()
}

func (t *Tape[M]) lookupLLF(token llf.Token) llf.Entry {
	e, ok := t.registry.Lookup(token)
	if !ok {
		panic(fmt.Sprintf("gradtape: replay of unregistered low-level-function token %d", token))
	}
	return e
}
