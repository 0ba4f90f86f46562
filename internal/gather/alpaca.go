package gather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"vela/internal/domain"
	"vela/internal/store"
	"vela/internal/util"
)

var _ Gatherer = (*DailyBarGatherer)(nil)

// barsFetcher is the slice of the Alpaca market-data client the gatherer
// needs. Tests substitute a fake.
type barsFetcher interface {
	GetMultiBars(symbols []string, req marketdata.GetBarsRequest) (map[string][]marketdata.Bar, error)
}

// DailyBarGatherer fetches daily OHLCV bars for a configured symbol list via
// the Alpaca market-data API and writes them to the bar store. Writes are
// merge-deduplicated by the store, so repeated runs over the same range are
// idempotent.
type DailyBarGatherer struct {
	client     barsFetcher
	store      store.BarStore
	symbols    []string
	batchSize  int // symbols per API call
	maxWorkers int // concurrent fetch goroutines
	limiter    *util.RateLimiter
	startDate  string
	log        *slog.Logger

	// latestDay resolves the most recent finished trading day. Overridable
	// in tests to avoid the calendar API.
	latestDay func() (time.Time, error)
}

// NewDailyBarGatherer creates a DailyBarGatherer configured with the given
// Alpaca credentials, symbol list, target store, and batch parameters.
func NewDailyBarGatherer(apiKey, apiSecret, dataURL, baseURL string, s store.BarStore, symbols []string, batchSize, maxWorkers, rateLimitPerMin int, startDate string) *DailyBarGatherer {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	if maxWorkers <= 0 {
		maxWorkers = 4
	}

	return &DailyBarGatherer{
		client:     marketdata.NewClient(opts),
		store:      s,
		symbols:    symbols,
		batchSize:  batchSize,
		maxWorkers: maxWorkers,
		limiter:    util.NewRateLimiter(rateLimitPerMin),
		startDate:  startDate,
		log:        slog.Default().With("gatherer", "us-daily"),
		latestDay: func() (time.Time, error) {
			return LatestFinishedTradingDay(apiKey, apiSecret, baseURL)
		},
	}
}

// Name returns the gatherer identifier.
func (g *DailyBarGatherer) Name() string { return "us-daily" }

// Run fetches daily bars for every configured symbol from the start date up
// to the latest finished trading day and writes them to the store.
func (g *DailyBarGatherer) Run(ctx context.Context) error {
	if len(g.symbols) == 0 {
		return fmt.Errorf("no symbols configured")
	}

	start, err := time.Parse("2006-01-02", g.startDate)
	if err != nil {
		return fmt.Errorf("parsing start date %q: %w", g.startDate, err)
	}

	end, err := g.latestDay()
	if err != nil {
		return fmt.Errorf("determining end date: %w", err)
	}

	batches := chunkSymbols(g.symbols, g.batchSize)

	g.log.Info("starting us-daily",
		"start", start.Format("2006-01-02"),
		"end", end.Format("2006-01-02"),
		"symbols", len(g.symbols),
		"batches", len(batches),
	)

	batchCh := make(chan int, len(batches))
	for i := range batches {
		batchCh <- i
	}
	close(batchCh)

	var (
		wg        sync.WaitGroup
		totalBars atomic.Int64
		totalMiss atomic.Int64
		failed    atomic.Int64
		runStart  = time.Now()
	)

	workers := min(g.maxWorkers, len(batches))
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batchIdx := range batchCh {
				if ctx.Err() != nil {
					return
				}

				batch := batches[batchIdx]
				if err := g.limiter.Wait(ctx); err != nil {
					return
				}

				var bars []domain.Bar
				err := util.Retry(ctx, 3, time.Second, func() error {
					var ferr error
					bars, ferr = g.fetchMultiBars(ctx, batch, start, end)
					return ferr
				})
				if err != nil {
					failed.Add(1)
					g.log.Error("batch fetch failed",
						"batch", fmt.Sprintf("%d/%d", batchIdx+1, len(batches)),
						"err", err,
					)
					continue
				}

				hitSymbols := make(map[string]struct{})
				for _, b := range bars {
					hitSymbols[b.Symbol] = struct{}{}
				}
				for _, sym := range batch {
					if _, hit := hitSymbols[strings.ToUpper(sym)]; !hit {
						totalMiss.Add(1)
						g.log.Warn("no bars returned", "symbol", sym)
					}
				}

				if len(bars) > 0 {
					if err := g.store.WriteBars(ctx, bars); err != nil {
						failed.Add(1)
						g.log.Error("writing bars failed", "err", err)
						continue
					}
					totalBars.Add(int64(len(bars)))
				}

				g.log.Info("batch done",
					"batch", fmt.Sprintf("%d/%d", batchIdx+1, len(batches)),
					"bars", len(bars),
					"elapsed", time.Since(runStart).Round(time.Second),
				)
			}
		}()
	}

	wg.Wait()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	g.log.Info("complete",
		"bars", totalBars.Load(),
		"empty", totalMiss.Load(),
		"failedBatches", failed.Load(),
		"elapsed", time.Since(runStart).Round(time.Second),
	)

	if n := failed.Load(); n > 0 {
		return fmt.Errorf("%d of %d batches failed", n, len(batches))
	}
	return nil
}

// fetchMultiBars fetches daily bars for multiple symbols in a single API call.
func (g *DailyBarGatherer) fetchMultiBars(ctx context.Context, symbols []string, start, end time.Time) ([]domain.Bar, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	multiBars, err := g.client.GetMultiBars(symbols, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneDay,
		Start:     start,
		End:       end,
		Feed:      "sip",
	})
	if err != nil {
		return nil, fmt.Errorf("GetMultiBars: %w", err)
	}

	var bars []domain.Bar
	for symbol, alpacaBars := range multiBars {
		for _, ab := range alpacaBars {
			bars = append(bars, domain.Bar{
				Symbol:     strings.ToUpper(symbol),
				Timestamp:  ab.Timestamp,
				Open:       ab.Open,
				High:       ab.High,
				Low:        ab.Low,
				Close:      ab.Close,
				Volume:     int64(ab.Volume),
				TradeCount: int64(ab.TradeCount),
				VWAP:       ab.VWAP,
			})
		}
	}
	return bars, nil
}

// chunkSymbols splits symbols into batches of at most size.
func chunkSymbols(symbols []string, size int) [][]string {
	if size <= 0 {
		size = 1
	}
	var batches [][]string
	for i := 0; i < len(symbols); i += size {
		end := min(i+size, len(symbols))
		batches = append(batches, symbols[i:end])
	}
	return batches
}
