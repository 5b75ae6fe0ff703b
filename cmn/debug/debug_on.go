//go:build debug

package debug

import "fmt"

func ON() bool { return true }

func Assert(cond bool, args ...any) {
	if !cond {
		panic(fmt.Sprintln(append([]any{"assertion failed:"}, args...)...))
	}
}

func Assertf(cond bool, f string, args ...any) {
	if !cond {
		panic("assertion failed: " + fmt.Sprintf(f, args...))
	}
}

func AssertNoErr(err error) {
	if err != nil {
		panic(err)
	}
}
