package selector

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"setbull_trader/internal/clock"
	"setbull_trader/internal/config"
	"setbull_trader/internal/domain"
	"setbull_trader/internal/marketdata"
	"setbull_trader/pkg/log"
)

// historicalBatchSize is the Stage 2 parallel fan-out width from §4.4,
// bounded by a semaphore so the provider never sees more than this many
// concurrent requests.
const historicalBatchSize = 25

// tickerTypeCache is process-wide (§4.4 Stage 3: "cache ticker-type per
// symbol process-wide") so repeated historical runs don't re-fetch it.
var tickerTypeCache = gocache.New(24*time.Hour, time.Hour)

// earlyWindowStartMinute/EndMinute bound the 06:30-10:00 ET peak-gap scan
// window used by Stage 1b and Stage 2.
const (
	earlyWindowStartMinute = 6*60 + 30
	earlyWindowEndMinute   = 10 * 60
)

type historicalCandidate struct {
	symbol       string
	prevClose    float64
	dailyVolume  int64
	openPrice    float64
	needsStage1b bool

	peakPrice   float64
	peakTime    int // ET minutes-since-midnight
	peakGap     float64
	fadePct     float64
	isEarlyPeak bool
}

// selectHistorical implements §4.4 mode H across its six stages.
func selectHistorical(ctx context.Context, cfg *config.Config, date time.Time, client *marketdata.Client) ([]domain.WatchlistEntry, error) {
	candidates, err := historicalStage1(ctx, cfg, date, client)
	if err != nil {
		return nil, err
	}

	candidates = historicalStage1b(ctx, cfg, date, client, candidates)

	qualified, remaining := historicalStage2(ctx, cfg, date, client, candidates)

	if cfg.Historical.EarlyGainer.Enabled {
		qualified = append(qualified, historicalStage2b(cfg, remaining)...)
	}

	qualified = historicalStage3(ctx, client, date, qualified)

	return historicalStage4(cfg, date, qualified), nil
}

// historicalStage1 builds prevClose[symbol] from two grouped-daily-bar
// fetches, filters by volume and price window (or edge-case band pending
// Stage 1b verification), and keeps the top ceil(1.5*maxSymbolsToAnalyze)
// by daily volume.
func historicalStage1(ctx context.Context, cfg *config.Config, date time.Time, client *marketdata.Client) ([]historicalCandidate, error) {
	today, err := client.GetGrouped(ctx, date)
	if err != nil {
		return nil, err
	}
	prevDay, err := client.GetGrouped(ctx, marketdata.PreviousTradingDay(date))
	if err != nil {
		return nil, err
	}

	prevClose := make(map[string]float64, len(prevDay))
	for _, b := range prevDay {
		prevClose[b.Symbol] = b.Close
	}

	var candidates []historicalCandidate
	for _, b := range today {
		pc, ok := prevClose[b.Symbol]
		if !ok {
			log.ScannerDebug("selector", "historical-stage1", "no previous close, skipping symbol", map[string]interface{}{"symbol": b.Symbol})
			continue
		}
		if b.Volume < cfg.Historical.MinDiscoveryVolume {
			continue
		}
		switch {
		case b.Open >= cfg.Gap.MinPrice && b.Open <= cfg.Gap.MaxPrice:
			candidates = append(candidates, historicalCandidate{symbol: b.Symbol, prevClose: pc, dailyVolume: b.Volume, openPrice: b.Open})
		case b.Open >= 0.60 && b.Open < cfg.Gap.MinPrice:
			candidates = append(candidates, historicalCandidate{symbol: b.Symbol, prevClose: pc, dailyVolume: b.Volume, openPrice: b.Open, needsStage1b: true})
		}
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].dailyVolume > candidates[j].dailyVolume })
	keep := int(math.Ceil(1.5 * float64(cfg.Historical.MaxSymbolsToAnalyze)))
	if len(candidates) > keep {
		candidates = candidates[:keep]
	}
	return candidates, nil
}

// historicalStage1b verifies edge-case candidates (open in [0.60,minPrice))
// by checking whether their early-window peak price actually reaches the
// qualifying band.
func historicalStage1b(ctx context.Context, cfg *config.Config, date time.Time, client *marketdata.Client, candidates []historicalCandidate) []historicalCandidate {
	out := make([]historicalCandidate, 0, len(candidates))
	for _, c := range candidates {
		if !c.needsStage1b {
			out = append(out, c)
			continue
		}
		bars, err := client.Get5MinAggs(ctx, c.symbol, date, date.AddDate(0, 0, 1))
		if err != nil {
			log.ScannerWarn("selector", "historical-stage1b", "5-min bar fetch failed, dropping candidate", map[string]interface{}{"symbol": c.symbol, "error": err.Error()})
			continue
		}
		peak := peakInWindow(bars, earlyWindowStartMinute, earlyWindowEndMinute)
		if peak < cfg.Gap.MinPrice || peak > cfg.Gap.MaxPrice {
			continue
		}
		out = append(out, c)
	}
	return out
}

func peakInWindow(bars []domain.Candle, startMin, endMin int) float64 {
	var peak float64
	for _, b := range bars {
		m := clock.ET(time.UnixMilli(b.StartTS)).MinutesSinceMidnight()
		if m >= startMin && m < endMin && b.High > peak {
			peak = b.High
		}
	}
	return peak
}

// historicalStage2 computes the peak-gap metrics for every candidate in
// parallel batches of historicalBatchSize, early-terminating once enough
// symbols have qualified. Returns (qualified, the rest for Stage 2b).
func historicalStage2(ctx context.Context, cfg *config.Config, date time.Time, client *marketdata.Client, candidates []historicalCandidate) (qualified, rest []historicalCandidate) {
	regularStartMinute := clock.RegularStartMinute

	for batchStart := 0; batchStart < len(candidates); batchStart += historicalBatchSize {
		if len(qualified) >= cfg.Historical.MaxSymbolsToAnalyze {
			rest = append(rest, candidates[batchStart:]...)
			break
		}

		batchEnd := batchStart + historicalBatchSize
		if batchEnd > len(candidates) {
			batchEnd = len(candidates)
		}
		batch := candidates[batchStart:batchEnd]

		results := make([]historicalCandidate, len(batch))
		var wg sync.WaitGroup
		sem := make(chan struct{}, historicalBatchSize)
		for i, c := range batch {
			wg.Add(1)
			go func(i int, c historicalCandidate) {
				defer wg.Done()
				sem <- struct{}{}
				defer func() { <-sem }()

				bars, err := client.Get5MinAggs(ctx, c.symbol, date, date.AddDate(0, 0, 1))
				if err != nil {
					log.ScannerWarn("selector", "historical-stage2", "5-min bar fetch failed, skipping candidate", map[string]interface{}{"symbol": c.symbol, "error": err.Error()})
					results[i] = c
					return
				}
				results[i] = computePeakGap(c, bars, regularStartMinute, cfg.Historical.EarlyGainer.EarlyPeakWindowEnd)
			}(i, c)
		}
		wg.Wait()

		for _, c := range results {
			if c.peakGap >= cfg.Gap.MinPct {
				qualified = append(qualified, c)
			} else {
				rest = append(rest, c)
			}
		}
	}
	return qualified, rest
}

// computePeakGap implements §4.4 Stage 2's metric derivation for one
// candidate from its 06:30-10:00 ET 5-min bars.
func computePeakGap(c historicalCandidate, bars []domain.Candle, regularStartMinute int, earlyPeakWindowEnd string) historicalCandidate {
	var peakPrice float64
	var peakTime int
	var openPrice float64
	var lastPreMarketClose float64

	for _, b := range bars {
		m := clock.ET(time.UnixMilli(b.StartTS)).MinutesSinceMidnight()
		if m < earlyWindowStartMinute || m >= earlyWindowEndMinute {
			continue
		}
		if b.High > peakPrice {
			peakPrice = b.High
			peakTime = m
		}
		if m == regularStartMinute {
			openPrice = b.Open
		}
		if m < regularStartMinute {
			lastPreMarketClose = b.Close
		}
	}
	if openPrice == 0 {
		openPrice = lastPreMarketClose
	}
	if openPrice == 0 {
		openPrice = c.openPrice
	}

	c.peakPrice = peakPrice
	c.peakTime = peakTime
	if c.prevClose > 0 {
		c.peakGap = (peakPrice - c.prevClose) / c.prevClose * 100
	}
	if peakPrice > 0 {
		c.fadePct = (peakPrice - openPrice) / peakPrice * 100
	}
	if windowEndMin, err := clock.ParseHHMM(earlyPeakWindowEnd); err == nil {
		c.isEarlyPeak = peakTime <= windowEndMin
	}
	return c
}

// historicalStage2b implements the optional faders pass: from the
// candidates Stage 2 didn't already qualify, accept high-volume early
// peakers that faded hard, up to maxAdditionalFaders.
func historicalStage2b(cfg *config.Config, remaining []historicalCandidate) []historicalCandidate {
	eg := cfg.Historical.EarlyGainer
	var faders []historicalCandidate
	for _, c := range remaining {
		if len(faders) >= eg.MaxAdditionalFaders {
			break
		}
		if c.dailyVolume < eg.MinDailyVolumeForFaders {
			continue
		}
		if c.peakGap >= eg.MinEarlyPeakGap && c.isEarlyPeak && c.fadePct >= eg.MinFadePercent {
			faders = append(faders, c)
		}
	}
	return faders
}

// historicalStage3 keeps only common-stock tickers, using the process-wide
// ticker-type cache to avoid re-fetching a symbol's type across runs. On a
// cache miss the ticker type is resolved as of the date being scanned, not
// the wall-clock time the scan runs at. The cache is keyed by symbol only,
// so a type cached while scanning one date is reused for other dates until
// it expires.
func historicalStage3(ctx context.Context, client *marketdata.Client, date time.Time, candidates []historicalCandidate) []historicalCandidate {
	out := make([]historicalCandidate, 0, len(candidates))
	for _, c := range candidates {
		var tickerType string
		if cached, ok := tickerTypeCache.Get(c.symbol); ok {
			tickerType = cached.(string)
		} else {
			t, err := client.GetTickerType(ctx, c.symbol, date)
			if err != nil {
				log.ScannerWarn("selector", "historical-stage3", "ticker type fetch failed, dropping candidate", map[string]interface{}{"symbol": c.symbol, "error": err.Error()})
				continue
			}
			tickerType = t
			tickerTypeCache.SetDefault(c.symbol, tickerType)
		}
		if tickerType == "CS" {
			out = append(out, c)
		}
	}
	return out
}

// historicalStage4 sorts survivors by |gapPct| descending and truncates to
// maxSymbolsToAnalyze.
func historicalStage4(cfg *config.Config, date time.Time, candidates []historicalCandidate) []domain.WatchlistEntry {
	sort.Slice(candidates, func(i, j int) bool {
		return math.Abs(candidates[i].peakGap) > math.Abs(candidates[j].peakGap)
	})
	if len(candidates) > cfg.Historical.MaxSymbolsToAnalyze {
		candidates = candidates[:cfg.Historical.MaxSymbolsToAnalyze]
	}

	out := make([]domain.WatchlistEntry, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, domain.WatchlistEntry{
			Symbol:        c.symbol,
			GapPercent:    c.peakGap,
			CurrentPrice:  c.peakPrice,
			PreviousClose: c.prevClose,
			HOD:           c.peakPrice,
			DiscoveredAt:  date,
		})
	}
	return out
}
