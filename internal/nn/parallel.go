package nn

import (
	"runtime"

	"golang.org/x/sync/errgroup"
)

// forEachSample runs fn once per batch element, spread over GOMAXPROCS
// goroutines. Each call must only write its own sample's outputs.
func forEachSample(n int, fn func(i int)) {
	if n == 1 {
		fn(0)
		return
	}
	var g errgroup.Group
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}
