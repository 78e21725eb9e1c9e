// Package gradtape provides the recording/replay engine of a reverse-mode
// algorithmic-differentiation library.
//
// A Tape records, during a program's execution, every elementary assignment
// whose result depends on differentiable inputs as a statement carrying the
// partial-derivative coefficients linking its output to its inputs. Replaying
// the statements recovers derivatives without re-executing the original
// arithmetic: forward replay propagates tangents, reverse replay accumulates
// adjoints.
//
// # Quick Start
//
//	tape := gradtape.NewReuse()
//	tape.SetActive()
//
//	x1 := tape.RegisterInput(3.0)
//	x2 := tape.RegisterInput(4.0)
//	y := tape.RegisterInput(0) // output slot
//
//	// The front end records y = 2*x1 + 3*x2.
//	tape.StoreStatement(y, []model.JacobianEntry{
//	    {Coeff: 2.0, ID: x1},
//	    {Coeff: 3.0, ID: x2},
//	})
//
//	tape.SetGradient(y, 1.0)
//	tape.Evaluate()
//
//	fmt.Println(tape.Gradient(x1), tape.Gradient(x2)) // 2 3
//
// # Index Policies
//
// NewLinear creates a tape whose identifiers increase monotonically and are
// never reused; NewReuse recycles retired identifiers from a free list. The
// policy is fixed at construction. Reverse replay clears a consumed adjoint
// slot only under the reuse policy; linear tapes assign each identifier
// exactly once and skip the clear.
//
// # Concurrency
//
// A single tape is not internally thread-safe: exactly one goroutine may
// record into or evaluate a given tape at a time. Sharing an adjoint vector
// across goroutines is a pluggable policy (see adjoint.Guard) layered outside
// the engine, which itself performs no locking.
package gradtape
