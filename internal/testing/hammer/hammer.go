// Package hammer runs a test body from many goroutines released at once,
// surfacing shared state that a pure function must not have.
package hammer

import (
	"runtime"
	"sync"
	"testing"
)

// Hammer invokes a test concurrently in P goroutines N times per goroutine.
//
// Here's an example:
//
//	P := 8               // max count of goroutines
//	N := 1000            // work per goroutine
//	if testing.Short() { // Adjust down if `-test.short`
//		P = 4
//		N = 100
//	}
//
//	hammer.NewHammer(t, P, N).Run(func(p, n int) {
//		x := uint32(p*N + n)
//		require.Equal(t, x+1, addone.AddOne(x))
//	}, nil)
//
//	if t.Failed() {
//		return // At least one test failed, so return now.
//	}
type Hammer interface {
	// Run invokes test in P goroutines, each looping N times. p is the
	// goroutine index and n the iteration, so p*N+n is unique.
	//
	// onRunning, when not nil, runs after all goroutines have started but
	// before any of them call test.
	Run(test func(p, n int), onRunning func())
}

// NewHammer returns a Hammer for P goroutines doing N iterations each.
func NewHammer(t testing.TB, P, N int) Hammer {
	return &hammer{t: t, P: P, N: N}
}

type hammer struct {
	t testing.TB
	P int
	N int
}

// Run implements Hammer.Run
func (h *hammer) Run(test func(p, n int), onRunning func()) {
	defer runtime.GOMAXPROCS(runtime.GOMAXPROCS(h.P / 2)) // Ensure goroutines have to switch cores.

	running := make(chan int)
	// All goroutines wait on the same group so they are released together.
	var unblocked sync.WaitGroup
	finished := make(chan int)

	unblocked.Add(h.P)
	for p := 0; p < h.P; p++ {
		p := p

		go func() {
			defer func() {
				// t.FailNow exits via runtime.Goexit, which also lands here.
				if recovered := recover(); recovered != nil {
					h.t.Error(recovered)
				}
				finished <- 1
			}()
			running <- 1

			unblocked.Wait()
			for n := 0; n < h.N; n++ {
				test(p, n)
			}
		}()
	}

	for i := 0; i < h.P; i++ {
		<-running
	}

	if onRunning != nil {
		onRunning()
	}

	unblocked.Add(-h.P)

	for i := 0; i < h.P; i++ {
		<-finished
	}
}
