package sim

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/san-kum/platesim/internal/physics"
)

// Case is one independent run of a sweep.
type Case struct {
	Name    string
	Config  Config
	Initial physics.InitialCondition
	// Options apply to this case only, after the shared ones.
	Options []Option
}

// Sweep runs independent cases concurrently, at most limit at a time (all at
// once when limit <= 0). Each case gets its own solver, so only options that
// are safe for concurrent use (logger, collector) should be shared; stateful
// observers belong in Case.Options. The first failure cancels the remaining
// cases.
func Sweep(ctx context.Context, cases []Case, limit int, opts ...Option) ([]*Result, error) {
	results := make([]*Result, len(cases))

	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, c := range cases {
		g.Go(func() error {
			caseOpts := append(append([]Option(nil), opts...), c.Options...)
			res, err := Simulate(ctx, c.Config, c.Initial, caseOpts...)
			if err != nil {
				return err
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
