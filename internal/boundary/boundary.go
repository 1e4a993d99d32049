// Package boundary detects passage boundaries within an audio file by
// locating silence regions: stretches where RMS energy stays below a
// threshold for long enough to plausibly separate two passages.
package boundary

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/wkmp/wkmp-ap/internal/logging"
	"github.com/wkmp/wkmp-ap/internal/pcmfrontend"
	"github.com/wkmp/wkmp-ap/internal/perrors"
	"github.com/wkmp/wkmp-ap/internal/tick"
)

const (
	windowDurationSeconds = 0.1
	silenceThreshold      = 0.01
	minSilenceSeconds     = 2.0
	minPassageSeconds     = 30.0
)

// Boundary is one detected passage span.
type Boundary struct {
	Start      tick.Tick
	End        tick.Tick
	Confidence float64
}

// Detector finds passage boundaries by silence segmentation.
type Detector struct {
	logger *slog.Logger
}

// NewDetector builds a boundary detector.
func NewDetector() *Detector {
	return &Detector{logger: logging.ForService("boundary")}
}

// Detect decodes path and returns the ordered list of passage boundaries.
// Individual packet decode errors inside pcmfrontend are tolerated (the
// decode simply stops early); only a wholly undecodable file is an error.
func (d *Detector) Detect(path string) ([]Boundary, error) {
	decoded, err := pcmfrontend.DecodeMono(path)
	if err != nil {
		return nil, perrors.New(err).Category(perrors.CategoryBoundary).FileContext(path, 0).Build()
	}
	if len(decoded.Mono) == 0 {
		return nil, perrors.New(fmt.Errorf("no decodable audio track")).
			Category(perrors.CategoryBoundary).FileContext(path, 0).Build()
	}

	windowSize := int(float64(decoded.SampleRate) * windowDurationSeconds)
	if windowSize < 1 {
		windowSize = 1
	}

	windows := rmsWindows(decoded.Mono, windowSize)
	silences := silenceRegions(windows, windowSize)

	boundaries := boundariesFromSilences(silences, len(decoded.Mono), decoded.SampleRate)

	if d.logger != nil {
		d.logger.Info("boundary detection complete",
			"path", path,
			"samples", len(decoded.Mono),
			"sample_rate", decoded.SampleRate,
			"silence_regions", len(silences),
			"boundaries", len(boundaries),
		)
	}
	return boundaries, nil
}

func rmsWindows(mono []float32, windowSize int) []float64 {
	n := (len(mono) + windowSize - 1) / windowSize
	windows := make([]float64, 0, n)
	for start := 0; start < len(mono); start += windowSize {
		end := start + windowSize
		if end > len(mono) {
			end = len(mono)
		}
		windows = append(windows, rms(mono[start:end]))
	}
	return windows
}

func rms(chunk []float32) float64 {
	if len(chunk) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range chunk {
		v := float64(s)
		sumSquares += v * v
	}
	return math.Sqrt(sumSquares / float64(len(chunk)))
}

type sampleRange struct {
	startSample, endSample int
}

// silenceRegions scans RMS windows for runs below silenceThreshold lasting
// at least minSilenceSeconds, returning their sample-index spans.
func silenceRegions(windows []float64, windowSize int) []sampleRange {
	var regions []sampleRange
	silenceStart := -1

	for i, energy := range windows {
		isSilent := energy < silenceThreshold
		switch {
		case silenceStart < 0 && isSilent:
			silenceStart = i
		case silenceStart >= 0 && !isSilent:
			duration := float64(i-silenceStart) * windowDurationSeconds
			if duration >= minSilenceSeconds {
				regions = append(regions, sampleRange{
					startSample: silenceStart * windowSize,
					endSample:   i * windowSize,
				})
			}
			silenceStart = -1
		}
	}
	return regions
}

func boundariesFromSilences(silences []sampleRange, totalSamples, sampleRate int) []Boundary {
	minPassageSamples := int(minPassageSeconds * float64(sampleRate))

	if len(silences) == 0 {
		return []Boundary{{
			Start:      0,
			End:        toTicks(totalSamples, sampleRate),
			Confidence: 0.5,
		}}
	}

	var boundaries []Boundary
	currentStart := 0
	for _, s := range silences {
		if s.startSample-currentStart >= minPassageSamples {
			boundaries = append(boundaries, Boundary{
				Start:      toTicks(currentStart, sampleRate),
				End:        toTicks(s.startSample, sampleRate),
				Confidence: 0.8,
			})
		}
		currentStart = s.endSample
	}
	if totalSamples-currentStart >= minPassageSamples {
		boundaries = append(boundaries, Boundary{
			Start:      toTicks(currentStart, sampleRate),
			End:        toTicks(totalSamples, sampleRate),
			Confidence: 0.8,
		})
	}
	return boundaries
}

func toTicks(samples, sampleRate int) tick.Tick {
	t, err := tick.SamplesToTicks(int64(samples), int64(sampleRate))
	if err != nil {
		// Unreachable for file-length sample counts at audio sample rates;
		// ticks overflow requires roughly ten years of continuous audio.
		return 0
	}
	return t
}
