package health

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// AggregatorConfig configures the health aggregator.
type AggregatorConfig struct {
	// Timeout bounds a whole CheckAll pass and each single Check.
	// Default: 10 seconds
	Timeout time.Duration

	// Concurrency caps how many checkers run at once. Zero means no cap.
	Concurrency int
}

// NamedResult is one checker's result within a Report.
type NamedResult struct {
	Name string
	Result
}

// Report is the outcome of running every registered checker.
type Report struct {
	Status    Status
	Checks    []NamedResult
	Timestamp time.Time
}

// Find returns the result of the named check.
func (r Report) Find(name string) (NamedResult, bool) {
	i := slices.IndexFunc(r.Checks, func(c NamedResult) bool { return c.Name == name })
	if i < 0 {
		return NamedResult{}, false
	}
	return r.Checks[i], true
}

type entry struct {
	name    string
	checker Checker
}

// Aggregator runs the client's checkers concurrently and folds them into
// one Report.
type Aggregator struct {
	cfg AggregatorConfig
	now func() time.Time

	mu      sync.RWMutex
	entries []entry
}

// NewAggregator creates a new health aggregator.
func NewAggregator(config AggregatorConfig) *Aggregator {
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	return &Aggregator{cfg: config, now: time.Now}
}

// Register adds a checker under its Name. Registering a name again
// replaces the earlier checker in place.
func (a *Aggregator) Register(checker Checker) error {
	if checker == nil || checker.Name() == "" {
		return ErrInvalidChecker
	}
	e := entry{name: checker.Name(), checker: checker}

	a.mu.Lock()
	defer a.mu.Unlock()
	if i := a.indexLocked(e.name); i >= 0 {
		a.entries[i] = e
		return nil
	}
	a.entries = append(a.entries, e)
	return nil
}

// Unregister removes a checker. Unknown names are ignored.
func (a *Aggregator) Unregister(name string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if i := a.indexLocked(name); i >= 0 {
		a.entries = slices.Delete(a.entries, i, i+1)
	}
}

// CheckerNames returns the registered names in registration order.
func (a *Aggregator) CheckerNames() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, len(a.entries))
	for i, e := range a.entries {
		names[i] = e.name
	}
	return names
}

// Check runs a single named checker.
func (a *Aggregator) Check(ctx context.Context, name string) (Result, error) {
	a.mu.RLock()
	i := a.indexLocked(name)
	var c Checker
	if i >= 0 {
		c = a.entries[i].checker
	}
	a.mu.RUnlock()

	if c == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrCheckerNotFound, name)
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()
	return a.runCheck(ctx, c), nil
}

// CheckAll runs every checker concurrently. Results are listed in
// registration order and the overall status is the worst among them.
func (a *Aggregator) CheckAll(ctx context.Context) Report {
	a.mu.RLock()
	entries := slices.Clone(a.entries)
	a.mu.RUnlock()

	report := Report{Timestamp: a.now(), Checks: make([]NamedResult, len(entries))}
	if len(entries) == 0 {
		return report
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	var g errgroup.Group
	if a.cfg.Concurrency > 0 {
		g.SetLimit(a.cfg.Concurrency)
	}
	for i, e := range entries {
		g.Go(func() error {
			report.Checks[i] = NamedResult{Name: e.name, Result: a.runCheck(ctx, e.checker)}
			return nil
		})
	}
	_ = g.Wait()

	report.Status = OverallStatus(report.Checks)
	return report
}

// OverallStatus is the worst status among results.
func OverallStatus(results []NamedResult) Status {
	worst := StatusHealthy
	for _, r := range results {
		worst = max(worst, r.Status)
	}
	return worst
}

func (a *Aggregator) indexLocked(name string) int {
	return slices.IndexFunc(a.entries, func(e entry) bool { return e.name == name })
}

// runCheck gives the checker until ctx is done. A checker that ignores ctx
// is abandoned and reported as timed out.
func (a *Aggregator) runCheck(ctx context.Context, c Checker) Result {
	start := a.now()
	done := make(chan Result, 1)

	go func() {
		var r Result
		defer func() {
			if p := recover(); p != nil {
				r = Unhealthy("check panicked", fmt.Errorf("%w: %v", ErrCheckPanicked, p))
			}
			if r.Duration == 0 {
				r.Duration = a.now().Sub(start)
			}
			if r.Timestamp.IsZero() {
				r.Timestamp = start
			}
			done <- r
		}()
		r = c.Check(ctx)
	}()

	select {
	case r := <-done:
		return r
	case <-ctx.Done():
		return Result{
			Status:    StatusUnhealthy,
			Message:   "check timed out",
			Error:     ErrCheckTimeout,
			Duration:  a.now().Sub(start),
			Timestamp: start,
		}
	}
}
