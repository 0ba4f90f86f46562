// Package series provides immutable, time-ordered market data series and the
// bounded history windows the simulator hands to strategies. A Window never
// exposes bars beyond its cut-off index; this is the engine's look-ahead
// guard.
package series

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"vela/internal/domain"
)

// ErrInvalidRange is returned when a requested range has start >= end.
var ErrInvalidRange = errors.New("invalid range: start must be before end")

// DataGapError reports that a requested range has no bar coverage for a
// symbol. It is fatal before a run starts (the run never reaches running).
type DataGapError struct {
	Symbol string
	Start  time.Time
	End    time.Time
}

func (e *DataGapError) Error() string {
	return fmt.Sprintf("no bar data for %s in [%s, %s]",
		e.Symbol, e.Start.Format("2006-01-02"), e.End.Format("2006-01-02"))
}

// ValidateRange checks that start strictly precedes end.
func ValidateRange(start, end time.Time) error {
	if !start.Before(end) {
		return ErrInvalidRange
	}
	return nil
}

// ---------------------------------------------------------------------------
// Series: one symbol
// ---------------------------------------------------------------------------

// Series is an immutable, strictly time-ordered bar sequence for one symbol.
type Series struct {
	symbol string
	bars   []domain.Bar

	// Pre-extracted columns aligned with bars, shared read-only by windows
	// so indicator inputs never allocate inside the bar loop.
	opens  []float64
	highs  []float64
	lows   []float64
	closes []float64
}

// New builds a Series from bars, sorting a private copy by timestamp.
// Duplicate timestamps are rejected; an empty input is rejected.
func New(symbol string, bars []domain.Bar) (*Series, error) {
	if len(bars) == 0 {
		return nil, fmt.Errorf("series %s: no bars", symbol)
	}

	sorted := make([]domain.Bar, len(bars))
	copy(sorted, bars)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Timestamp.Equal(sorted[i-1].Timestamp) {
			return nil, fmt.Errorf("series %s: duplicate bar timestamp %s",
				symbol, sorted[i].Timestamp.Format(time.RFC3339))
		}
	}

	s := &Series{
		symbol: symbol,
		bars:   sorted,
		opens:  make([]float64, len(sorted)),
		highs:  make([]float64, len(sorted)),
		lows:   make([]float64, len(sorted)),
		closes: make([]float64, len(sorted)),
	}
	for i, b := range sorted {
		s.opens[i] = b.Open
		s.highs[i] = b.High
		s.lows[i] = b.Low
		s.closes[i] = b.Close
	}
	return s, nil
}

// Symbol returns the series' symbol.
func (s *Series) Symbol() string { return s.symbol }

// Len returns the number of bars.
func (s *Series) Len() int { return len(s.bars) }

// At returns the bar at index i.
func (s *Series) At(i int) domain.Bar { return s.bars[i] }

// Bars returns the full ordered bar slice. Callers must treat it as
// read-only.
func (s *Series) Bars() []domain.Bar { return s.bars }

// ---------------------------------------------------------------------------
// Set: multiple symbols on a merged timeline
// ---------------------------------------------------------------------------

// Set groups one Series per symbol under a merged timeline: the sorted union
// of all bar timestamps. A timeline index identifies one simulation step.
type Set struct {
	symbols  []string
	series   map[string]*Series
	timeline []time.Time

	// upTo[sym][t] = number of bars of sym with timestamp <= timeline[t].
	// A bar exists exactly at t iff that count increased at t.
	upTo map[string][]int
	// atStep[sym][t] = bar index of sym at timeline[t], or -1.
	atStep map[string][]int
}

// NewSet merges the given series into a Set. Symbols must be distinct.
func NewSet(list ...*Series) (*Set, error) {
	if len(list) == 0 {
		return nil, errors.New("series set: no series")
	}

	set := &Set{
		series: make(map[string]*Series, len(list)),
		upTo:   make(map[string][]int, len(list)),
		atStep: make(map[string][]int, len(list)),
	}

	seen := make(map[time.Time]struct{})
	for _, s := range list {
		if _, dup := set.series[s.symbol]; dup {
			return nil, fmt.Errorf("series set: duplicate symbol %s", s.symbol)
		}
		set.series[s.symbol] = s
		set.symbols = append(set.symbols, s.symbol)
		for _, b := range s.bars {
			if _, ok := seen[b.Timestamp]; !ok {
				seen[b.Timestamp] = struct{}{}
				set.timeline = append(set.timeline, b.Timestamp)
			}
		}
	}
	sort.Strings(set.symbols)
	sort.Slice(set.timeline, func(i, j int) bool {
		return set.timeline[i].Before(set.timeline[j])
	})

	for sym, s := range set.series {
		counts := make([]int, len(set.timeline))
		at := make([]int, len(set.timeline))
		n := 0
		for t, ts := range set.timeline {
			at[t] = -1
			if n < len(s.bars) && s.bars[n].Timestamp.Equal(ts) {
				at[t] = n
				n++
			}
			counts[t] = n
		}
		set.upTo[sym] = counts
		set.atStep[sym] = at
	}

	return set, nil
}

// Symbols returns the sorted symbols in the set.
func (ss *Set) Symbols() []string { return ss.symbols }

// Len returns the timeline length (number of simulation steps).
func (ss *Set) Len() int { return len(ss.timeline) }

// TimestampAt returns the timestamp of timeline index t.
func (ss *Set) TimestampAt(t int) time.Time { return ss.timeline[t] }

// Series returns the series for symbol, or nil.
func (ss *Set) Series(symbol string) *Series { return ss.series[symbol] }

// BarAt returns symbol's bar exactly at timeline index t, if it has one.
func (ss *Set) BarAt(symbol string, t int) (domain.Bar, bool) {
	at, ok := ss.atStep[symbol]
	if !ok || at[t] < 0 {
		return domain.Bar{}, false
	}
	return ss.series[symbol].bars[at[t]], true
}

// Window returns the history view ending at (and including) timeline index t.
func (ss *Set) Window(t int) *Window {
	return &Window{set: ss, t: t}
}

// ScanGaps returns one warning per pair of consecutive bars further apart
// than maxGapDays calendar days. Gaps are tolerated (no interpolation); this
// only surfaces them on the result.
func (ss *Set) ScanGaps(maxGapDays int) []domain.Warning {
	if maxGapDays <= 0 {
		return nil
	}
	limit := time.Duration(maxGapDays) * 24 * time.Hour

	var warns []domain.Warning
	for _, sym := range ss.symbols {
		bars := ss.series[sym].bars
		for i := 1; i < len(bars); i++ {
			gap := bars[i].Timestamp.Sub(bars[i-1].Timestamp)
			if gap <= limit {
				continue
			}
			// Timeline index of the bar after the gap.
			t := sort.Search(len(ss.timeline), func(k int) bool {
				return !ss.timeline[k].Before(bars[i].Timestamp)
			})
			warns = append(warns, domain.Warning{
				Kind:      domain.WarnDataGap,
				Bar:       t,
				Timestamp: bars[i].Timestamp,
				Message: fmt.Sprintf("%s: no bars for %d days between %s and %s",
					sym, int(gap.Hours()/24),
					bars[i-1].Timestamp.Format("2006-01-02"),
					bars[i].Timestamp.Format("2006-01-02")),
			})
		}
	}
	return warns
}

// ---------------------------------------------------------------------------
// Window: the strategy's view of history
// ---------------------------------------------------------------------------

// Window is a read-only view of all bars up to and including one timeline
// index. It is the only market data a strategy receives during a run: bars
// after the cut-off are unreachable through it.
type Window struct {
	set *Set
	t   int
}

// Index returns the timeline index this window ends at.
func (w *Window) Index() int { return w.t }

// Timestamp returns the timestamp of the window's final step.
func (w *Window) Timestamp() time.Time { return w.set.timeline[w.t] }

// Symbols returns the symbols visible in the window.
func (w *Window) Symbols() []string { return w.set.symbols }

// Bars returns symbol's bars up to and including the cut-off, oldest first.
// The slice shares the series' backing array and must be treated as
// read-only.
func (w *Window) Bars(symbol string) []domain.Bar {
	counts, ok := w.set.upTo[symbol]
	if !ok {
		return nil
	}
	return w.set.series[symbol].bars[:counts[w.t]]
}

// Current returns symbol's bar exactly at the cut-off step, if present.
func (w *Window) Current(symbol string) (domain.Bar, bool) {
	return w.set.BarAt(symbol, w.t)
}

// Opens returns the open column for symbol up to the cut-off. Read-only.
func (w *Window) Opens(symbol string) []float64 { return w.column(symbol, colOpen) }

// Highs returns the high column for symbol up to the cut-off. Read-only.
func (w *Window) Highs(symbol string) []float64 { return w.column(symbol, colHigh) }

// Lows returns the low column for symbol up to the cut-off. Read-only.
func (w *Window) Lows(symbol string) []float64 { return w.column(symbol, colLow) }

// Closes returns the close column for symbol up to the cut-off. Read-only.
func (w *Window) Closes(symbol string) []float64 { return w.column(symbol, colClose) }

type columnKind int

const (
	colOpen columnKind = iota
	colHigh
	colLow
	colClose
)

func (w *Window) column(symbol string, kind columnKind) []float64 {
	counts, ok := w.set.upTo[symbol]
	if !ok {
		return nil
	}
	s := w.set.series[symbol]
	n := counts[w.t]
	switch kind {
	case colOpen:
		return s.opens[:n]
	case colHigh:
		return s.highs[:n]
	case colLow:
		return s.lows[:n]
	default:
		return s.closes[:n]
	}
}
