// Package resample converts interleaved PCM between sample rates using a
// fixed polynomial kernel. It runs inline in the serial decoder's worker
// loop (no internal scheduling or buffering of its own), per spec.md §4.8.
package resample

import (
	"fmt"

	resampler "github.com/tphakala/go-audio-resampler"

	"github.com/wkmp/wkmp-ap/internal/perrors"
)

// Convert resamples interleaved float32 PCM with channels channels from
// srcRate to dstRate. A no-op when the rates already match.
func Convert(samples []float32, srcRate, dstRate, channels int) ([]float32, error) {
	if srcRate <= 0 || dstRate <= 0 || channels <= 0 {
		return nil, perrors.New(fmt.Errorf("resample: invalid rates/channels src=%d dst=%d ch=%d", srcRate, dstRate, channels)).
			Category(perrors.CategoryResample).
			Build()
	}
	if srcRate == dstRate {
		return samples, nil
	}

	out, err := resampler.Resample(samples, srcRate, dstRate, channels)
	if err != nil {
		return nil, perrors.New(err).Category(perrors.CategoryResample).Build()
	}
	return out, nil
}
