package engine

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// runParallel executes the ready frontier on cfg.Procs goroutines. A node
// becomes ready when all of its dependencies have settled, whatever state
// they settled in; poisoned nodes flow through the same frontier so the
// dependency counters always reach zero.
func (ex *executor) runParallel(ctx context.Context) error {
	n := ex.plan.Len()
	if n == 0 {
		return nil
	}

	var (
		mu      sync.Mutex
		settled int
		waiting = make(map[string]int, n)
	)
	ready := make(chan string, n)
	for _, name := range ex.plan.Order {
		if deps := len(ex.plan.DepsOf(name)); deps > 0 {
			waiting[name] = deps
		} else {
			ready <- name
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < ex.cfg.Procs; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return gctx.Err()
				case name, ok := <-ready:
					if !ok {
						return nil
					}
					ex.settle(gctx, ex.executeNode(gctx, name))

					mu.Lock()
					settled++
					for _, dep := range ex.plan.Dependents(name) {
						waiting[dep]--
						if waiting[dep] == 0 {
							delete(waiting, dep)
							ready <- dep
						}
					}
					if settled == n {
						close(ready)
					}
					mu.Unlock()
				}
			}
		})
	}
	return g.Wait()
}
