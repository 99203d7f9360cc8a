package engine

import "context"

// runSerial executes the plan's topological order one node at a time.
// Deterministic and allocation-light; the right choice for cheap steps and
// for debugging.
func (ex *executor) runSerial(ctx context.Context) error {
	for _, name := range ex.plan.Order {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		ex.settle(ctx, ex.executeNode(ctx, name))
	}
	return nil
}
