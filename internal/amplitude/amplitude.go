// Package amplitude analyzes a passage's lead-in and lead-out timing from
// its RMS envelope: how long it takes the passage to reach a meaningful
// level after it starts, and how long before it ends, plus whether either
// edge ramps quickly enough to need special fade handling.
package amplitude

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"golang.org/x/time/rate"

	"github.com/wkmp/wkmp-ap/internal/logging"
	"github.com/wkmp/wkmp-ap/internal/pcmfrontend"
	"github.com/wkmp/wkmp-ap/internal/perrors"
)

const (
	windowDurationSeconds = 0.1
	searchFraction        = 0.25
	minDurationSeconds    = 0.1
	quickRampWindows      = 10
	quickRampChangeRatio  = 0.5
)

// Parameters tunes the threshold the analyzer searches for. Both
// thresholds are dB relative to the passage's own peak RMS and are
// expected to be negative (e.g. -12.0 means 12dB below peak).
type Parameters struct {
	LeadInThresholdDB  float64
	LeadOutThresholdDB float64
}

// DefaultParameters matches the thresholds the original analyzer shipped
// with: -12dB is loud enough to count as "the passage has started" without
// tripping on early transients.
var DefaultParameters = Parameters{
	LeadInThresholdDB:  -12.0,
	LeadOutThresholdDB: -12.0,
}

// Result is the lead-in/lead-out analysis for one passage.
type Result struct {
	PeakRMS         float64
	LeadInDuration  time.Duration
	LeadOutDuration time.Duration
	QuickRampUp     bool
	QuickRampDown   bool
	RMSProfile      []float32
}

// Analyzer extracts lead-in/lead-out timing from a passage's amplitude
// envelope.
type Analyzer struct {
	params Parameters
	logger *slog.Logger
}

// NewAnalyzer builds an analyzer with the given parameters.
func NewAnalyzer(params Parameters) *Analyzer {
	return &Analyzer{params: params, logger: logging.ForService("amplitude")}
}

// DefaultAnalyzer builds an analyzer using DefaultParameters.
func DefaultAnalyzer() *Analyzer {
	return NewAnalyzer(DefaultParameters)
}

// AnalyzeFile decodes the whole of path and derives lead-in/lead-out
// timing from its [startSeconds, endSeconds) window; audio outside the
// window is decoded but not analyzed. ctx is checked periodically
// (every yieldInterval of wall-clock work) so a caller running this on a
// shared worker pool can cancel a long analysis without waiting for it to
// finish; a zero yieldInterval disables the check entirely (matching the
// "yield_interval_ms == 0" disable-for-tests convention).
func (a *Analyzer) AnalyzeFile(ctx context.Context, path string, startSeconds, endSeconds float64, yieldInterval time.Duration) (*Result, error) {
	decoded, err := pcmfrontend.DecodeMono(path)
	if err != nil {
		return nil, perrors.New(err).Category(perrors.CategoryAmplitude).FileContext(path, 0).Build()
	}
	if len(decoded.Mono) == 0 {
		return nil, perrors.New(fmt.Errorf("no decodable audio track")).
			Category(perrors.CategoryAmplitude).FileContext(path, 0).Build()
	}

	startSample := int(startSeconds * float64(decoded.SampleRate))
	endSample := int(endSeconds * float64(decoded.SampleRate))
	if endSample > len(decoded.Mono) {
		endSample = len(decoded.Mono)
	}
	if startSample < 0 {
		startSample = 0
	}
	if startSample > endSample {
		startSample = endSample
	}

	passage, err := a.yieldingSlice(ctx, decoded.Mono, startSample, endSample, yieldInterval)
	if err != nil {
		return nil, err
	}

	windowSize := int(float64(decoded.SampleRate) * windowDurationSeconds)
	if windowSize < 1 {
		windowSize = 1
	}
	profile := rmsProfile(passage, windowSize)

	peak := 0.0
	for _, v := range profile {
		if f := float64(v); f > peak {
			peak = f
		}
	}

	leadInThreshold := peak * math.Pow(10, a.params.LeadInThresholdDB/20.0)
	leadOutThreshold := peak * math.Pow(10, a.params.LeadOutThresholdDB/20.0)

	leadInWindows := searchLeadIn(profile, leadInThreshold)
	leadOutWindows := searchLeadOut(profile, leadOutThreshold)

	leadIn := windowsToDuration(leadInWindows)
	leadOut := windowsToDuration(leadOutWindows)

	if a.logger != nil {
		a.logger.Debug("amplitude analysis complete",
			"path", path,
			"peak_rms", peak,
			"lead_in", leadIn,
			"lead_out", leadOut,
		)
	}

	return &Result{
		PeakRMS:         peak,
		LeadInDuration:  leadIn,
		LeadOutDuration: leadOut,
		QuickRampUp:     quickRamp(firstN(profile, quickRampWindows)),
		QuickRampDown:   quickRamp(lastN(profile, quickRampWindows)),
		RMSProfile:      profile,
	}, nil
}

// yieldingSlice copies mono[start:end], periodically checking ctx so a
// long-running copy+RMS pass on a shared worker pool stays cancellable. The
// check itself is paced by a rate.Limiter rather than a hand-rolled
// time.Since gate, so yieldInterval behaves like any other token-bucket
// cadence in this codebase (one token per yieldInterval, burst 1).
func (a *Analyzer) yieldingSlice(ctx context.Context, mono []float32, start, end int, yieldInterval time.Duration) ([]float32, error) {
	if yieldInterval <= 0 {
		out := make([]float32, end-start)
		copy(out, mono[start:end])
		return out, nil
	}

	limiter := rate.NewLimiter(rate.Every(yieldInterval), 1)
	out := make([]float32, 0, end-start)
	const chunk = 1 << 16
	for i := start; i < end; i += chunk {
		j := i + chunk
		if j > end {
			j = end
		}
		out = append(out, mono[i:j]...)

		if limiter.Allow() {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}
	}
	return out, nil
}

func rmsProfile(samples []float32, windowSize int) []float32 {
	n := (len(samples) + windowSize - 1) / windowSize
	profile := make([]float32, 0, n)
	for start := 0; start < len(samples); start += windowSize {
		end := start + windowSize
		if end > len(samples) {
			end = len(samples)
		}
		profile = append(profile, rms(samples[start:end]))
	}
	return profile
}

func rms(chunk []float32) float32 {
	if len(chunk) == 0 {
		return 0
	}
	var sumSquares float32
	for _, s := range chunk {
		sumSquares += s * s
	}
	return float32(math.Sqrt(float64(sumSquares / float32(len(chunk)))))
}

// searchLeadIn finds the first window exceeding threshold within the
// leading searchFraction of the profile; capped at that fraction if never
// exceeded.
func searchLeadIn(profile []float32, threshold float64) int {
	maxWindows := int(math.Ceil(float64(len(profile)) * searchFraction))
	limit := maxWindows
	if limit > len(profile) {
		limit = len(profile)
	}
	for i := 0; i < limit; i++ {
		if float64(profile[i]) > threshold {
			return i
		}
	}
	return maxWindows
}

// searchLeadOut finds the last window exceeding threshold within the
// trailing searchFraction, measured as a count of windows from that point
// to the end; capped at that fraction if never exceeded.
func searchLeadOut(profile []float32, threshold float64) int {
	maxWindows := int(math.Ceil(float64(len(profile)) * searchFraction))
	searchStart := len(profile) - maxWindows
	if searchStart < 0 {
		searchStart = 0
	}
	for i := len(profile) - 1; i >= searchStart; i-- {
		if float64(profile[i]) > threshold {
			return len(profile) - i
		}
	}
	return maxWindows
}

func windowsToDuration(windows int) time.Duration {
	seconds := float64(windows) * windowDurationSeconds
	if seconds < minDurationSeconds {
		seconds = minDurationSeconds
	}
	return time.Duration(seconds * float64(time.Second))
}

func quickRamp(windows []float32) bool {
	if len(windows) < 2 {
		return false
	}
	first := float64(windows[0])
	last := float64(windows[len(windows)-1])
	base := first
	if base < 0.001 {
		base = 0.001
	}
	return math.Abs(last-first)/base > quickRampChangeRatio
}

func firstN(profile []float32, n int) []float32 {
	if n > len(profile) {
		n = len(profile)
	}
	return profile[:n]
}

func lastN(profile []float32, n int) []float32 {
	if n > len(profile) {
		n = len(profile)
	}
	return profile[len(profile)-n:]
}
