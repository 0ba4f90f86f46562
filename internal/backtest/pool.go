package backtest

import (
	"context"
	"runtime"
	"sync"

	"vela/internal/domain"
)

// BatchResult pairs one configuration from a batch with its outcome. Err is
// set for configurations that failed before running (bad parameters, missing
// data); Result carries everything else, including failed and cancelled runs.
type BatchResult struct {
	Config domain.BacktestConfig
	Result *domain.BacktestResult
	Err    error
}

// Pool runs batches of independent backtests on a fixed set of workers.
// Each run is fully sequential internally and owns all of its mutable state;
// only the immutable bar data is shared, so runs never contend.
type Pool struct {
	runner  *Runner
	workers int
}

// NewPool creates a Pool over the given runner. workers <= 0 uses the number
// of CPUs.
func NewPool(runner *Runner, workers int) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Pool{runner: runner, workers: workers}
}

// Run executes every configuration and returns results in input order. It
// blocks until all runs finish or the context is cancelled; cancelled runs
// report their partial results like any other.
func (p *Pool) Run(ctx context.Context, configs []domain.BacktestConfig) []BatchResult {
	results := make([]BatchResult, len(configs))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < p.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				res, err := p.runner.Run(ctx, configs[i])
				results[i] = BatchResult{Config: configs[i], Result: res, Err: err}
			}
		}()
	}

	for i := range configs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return results
}
