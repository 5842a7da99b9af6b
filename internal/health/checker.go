package health

import (
	"context"
	"sync"
	"time"

	"github.com/keithlinneman/linnemanlabs-monitoring/internal/log"
	"github.com/keithlinneman/linnemanlabs-monitoring/internal/xerrors"
)

// Checker is the health-probe capability the host injects into the
// monitoring endpoint. It is called at most once per health-check request
// with that request's context.
type Checker interface {
	CheckHealth(ctx context.Context) (Report, error)
}

// CheckerFunc adapts a function into a Checker.
type CheckerFunc func(ctx context.Context) (Report, error)

func (f CheckerFunc) CheckHealth(ctx context.Context) (Report, error) { return f(ctx) }

// Static returns a Checker that always reports results.
func Static(results ...CheckResult) CheckerFunc {
	return func(context.Context) (Report, error) {
		out := make(Report, len(results))
		copy(out, results)
		return out, nil
	}
}

// Dependency is one named probe in a Gather set. Dependencies are critical
// unless NonCritical is set.
type Dependency struct {
	Name        string
	NonCritical bool
	// Timeout bounds a single probe; zero leaves it to the request context.
	Timeout time.Duration
	Probe   Probe
}

// Gather returns a Checker that runs every dependency's probe concurrently
// and reports them in declaration order. A probe error or panic marks that
// dependency down and is logged through the ctx logger; Gather itself only
// fails when ctx is already done.
func Gather(deps ...Dependency) CheckerFunc {
	return func(ctx context.Context) (Report, error) {
		if err := ctx.Err(); err != nil {
			return nil, xerrors.Wrap(err, "health check canceled")
		}
		host := MachineName()
		report := make(Report, len(deps))
		var wg sync.WaitGroup
		for i, d := range deps {
			wg.Add(1)
			go func() {
				defer wg.Done()
				elapsed, err := runProbe(ctx, d)
				if err != nil {
					log.FromContext(ctx).Warn(ctx, "dependency down",
						"dependency", d.Name,
						"critical", !d.NonCritical,
						"elapsed_ms", elapsed.Milliseconds(),
						"reason", err.Error(),
					)
				}
				report[i] = NewResult(d.Name, err != nil, elapsed.Milliseconds(), Critical(!d.NonCritical), OnMachine(host))
			}()
		}
		wg.Wait()
		return report, nil
	}
}

func runProbe(ctx context.Context, d Dependency) (elapsed time.Duration, err error) {
	if d.Probe == nil {
		return 0, xerrors.Newf("no probe configured for %q", d.Name)
	}
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}
	start := time.Now()
	defer func() {
		elapsed = time.Since(start)
		if p := recover(); p != nil {
			err = xerrors.Newf("probe panic: %v", p)
		}
	}()
	return 0, d.Probe.Check(ctx)
}
