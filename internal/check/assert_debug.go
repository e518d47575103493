//go:build debug

// Package check holds assertions compiled in only with the debug build tag.
package check

import "fmt"

func Assert(cond bool, msg string) {
	if !cond {
		panic("check failed: " + msg)
	}
}

func Assertf(cond bool, format string, args ...any) {
	if !cond {
		panic("check failed: " + fmt.Sprintf(format, args...))
	}
}

// NoError panics if err is non-nil, naming the operation that failed.
func NoError(err error, op string) {
	if err != nil {
		panic(fmt.Sprintf("check failed: %s: %v", op, err))
	}
}
