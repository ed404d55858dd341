package parallel

import (
	"context"

	"golang.org/x/sync/errgroup"

	"inferd/pkg/types"
)

// Runner invokes a single tool call and returns its result.
type Runner func(ctx context.Context, call types.ToolCall) (any, error)

// Result pairs a tool call with its outcome. Results are returned in the
// same order as the input calls regardless of execution mode.
type Result struct {
	Call  types.ToolCall
	Value any
	Err   error
}

// Run executes the calls according to the analyzer's decision: sequentially
// in list order, or concurrently when the decision permits. The first error
// cancels outstanding concurrent calls; sequential execution stops at the
// first failure.
func Run(ctx context.Context, calls []types.ToolCall, d Decision, run Runner) ([]Result, error) {
	results := make([]Result, len(calls))
	for i, c := range calls {
		results[i].Call = c
	}

	if d.Mode == ModeSequential {
		for i, c := range calls {
			if err := ctx.Err(); err != nil {
				results[i].Err = err
				return results, err
			}
			v, err := run(ctx, c)
			results[i].Value = v
			results[i].Err = err
			if err != nil {
				return results, err
			}
		}
		return results, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range calls {
		i, c := i, c
		g.Go(func() error {
			v, err := run(gctx, c)
			results[i].Value = v
			results[i].Err = err
			return err
		})
	}
	err := g.Wait()
	return results, err
}
