package gradtape

import (
	"time"

	"github.com/hupe1980/gradtape/model"
)

// NewScratch creates an empty helper tape for use with EraseWithScratch.
// A scratch tape shares the source's index manager and registry but must
// never record statements of its own; it exists purely as staging storage so
// that erase in a loop does not allocate a temporary tape per call.
func (t *Tape[M]) NewScratch() *Tape[M] {
	s := &Tape[M]{
		indices:  t.indices,
		registry: t.registry,
		opts:     t.opts,
	}
	s.statements = newStoreLike(t.statements, t.opts)
	s.jacobians = newStoreLike(t.jacobians, t.opts)
	s.llfTokens = newStoreLike(t.llfTokens, t.opts)
	s.llfFixed = newStoreLike(t.llfFixed, t.opts)
	s.llfDyn = newStoreLike(t.llfDyn, t.opts)
	s.adjoints = t.adjoints
	s.primals = t.primals
	return s
}

// Erase removes the statements in [start, end). It instantiates a temporary
// scratch tape; if erase runs in a loop, use EraseWithScratch with a reused
// scratch to avoid the per-call allocation.
func (t *Tape[M]) Erase(start, end Position) {
	t.EraseWithScratch(start, end, t.NewScratch())
}

// EraseWithScratch removes the statements in [start, end) using the supplied
// scratch tape: the suffix after end is copied to the scratch, the tape is
// truncated to start, and the suffix is re-appended. The scratch is emptied
// afterwards.
func (t *Tape[M]) EraseWithScratch(start, end Position, scratch *Tape[M]) {
	began := time.Now()
	removed := t.countStatements(start, end)

	// Store the tail after the erased part in the scratch tape, then reset
	// to before the erased part and re-append. Re-appending recomputes all
	// low-level-function payload offsets relative to this tape's cursors.
	scratch.Append(t, end, t.Position())
	t.ResetTo(start)
	t.Append(scratch, scratch.ZeroPosition(), scratch.Position())
	scratch.resetStores()

	t.opts.metricsCollector.RecordErase(removed, time.Since(began))
	t.opts.logger.LogErase(removed, time.Since(began))
}

// Append copies the statements of src in [start, end) verbatim onto the end
// of this tape. Low-level-function payloads are copied byte-for-byte through
// the same registry token; ownership of the copies lies with this tape's
// stores, nothing is shared. Both tapes must resolve tokens against
// equivalent registries.
func (t *Tape[M]) Append(src *Tape[M], start, end Position) {
	began := time.Now()

	jac := src.jacobians.CursorAt(start.Jac)
	toks := src.llfTokens.CursorAt(start.Token)
	fixed := src.llfFixed.CursorAt(start.Fixed)
	dyn := src.llfDyn.CursorAt(start.Dyn)

	statements := 0
	src.statements.ForEach(start.Stmt, end.Stmt, func(run []model.Statement) {
		statements += len(run)
		for _, st := range run {
			if st.IsLowLevelFunction() {
				rec := toks.Take(1)[0]
				f := fixed.Take(int(rec.FixedSize))
				d := dyn.Take(int(rec.DynSize))
				t.pushLowLevelRecord(rec.Token, f, d)
				continue
			}

			t.statements.ReserveItems(1)
			t.jacobians.ReserveItems(int(st.Args))
			for _, e := range jac.Take(int(st.Args)) {
				t.jacobians.Push(e)
			}
			t.statements.Push(st)
		}
	})

	t.opts.metricsCollector.RecordAppend(statements, time.Since(began))
	t.opts.logger.LogAppend(statements, time.Since(began))
}

func (t *Tape[M]) countStatements(start, end Position) int {
	n := 0
	t.statements.ForEach(start.Stmt, end.Stmt, func(run []model.Statement) {
		n += len(run)
	})
	return n
}
