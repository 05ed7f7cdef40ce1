package cmn

import "fmt"

// Assert panics with "assertion failed" if cond is false. Assert is for invariants this
// package itself is responsible for maintaining - never for validating
// caller-supplied input, which must instead return one of the typed errors
// in errors.go.
func Assert(cond bool) {
	if !cond {
		panic("assertion failed")
	}
}

// AssertMsg is like Assert but panics with an explanatory message.
func AssertMsg(cond bool, msg string) {
	if !cond {
		panic("assertion failed: " + msg)
	}
}

// AssertNoErr panics if err is non-nil. Used at call sites where the error
// is guaranteed impossible by a preceding validation step (e.g. a size that
// was already checked to be a valid slab multiple).
func AssertNoErr(err error) {
	if err != nil {
		panic(fmt.Sprintf("unexpected error: %v", err))
	}
}
