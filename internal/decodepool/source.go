package decodepool

import (
	"github.com/wkmp/wkmp-ap/internal/fade"
	"github.com/wkmp/wkmp-ap/internal/model"
	"github.com/wkmp/wkmp-ap/internal/pcmfrontend"
	"github.com/wkmp/wkmp-ap/internal/resample"
	"github.com/wkmp/wkmp-ap/internal/tick"
)

// decodedPassage is the fully materialized, fade-applied, working-rate
// stereo buffer for one passage, plus whatever endpoint the decode
// discovered (only meaningful when the passage's own End was nil).
type decodedPassage struct {
	samples       []float32 // stereo interleaved
	totalFrames   int64
	discoveredEnd tick.Tick
	hasDiscovered bool
}

// decodePassage runs the front-end pipeline spec.md §4.7 steps 3-6: decode
// the source file, resample to workingRate, channel-conform to stereo,
// slice to the passage's [Start, End) range, and apply fade curves.
//
// Unlike the codec-seek-table "decode-and-skip" the original targets, this
// front-end decodes the whole file up front (pcmfrontend has no partial/seek
// API in this pack) and then slices; the discovered endpoint is simply the
// file's own decoded length when the passage's End is nil.
func decodePassage(path string, p model.Passage, workingRate int64) (*decodedPassage, error) {
	raw, err := pcmfrontend.DecodeInterleaved(path)
	if err != nil {
		return nil, err
	}

	stereo := toStereo(raw.Samples, raw.Channels)
	if int64(raw.SampleRate) != workingRate {
		stereo, err = resample.Convert(stereo, raw.SampleRate, int(workingRate), 2)
		if err != nil {
			return nil, err
		}
	}
	fileTotalFrames := int64(len(stereo) / 2)

	startFrame := tick.TicksToSamples(p.Start, workingRate)
	var endFrame int64
	var discovered tick.Tick
	hasDiscovered := false
	if p.End != nil {
		endFrame = tick.TicksToSamples(*p.End, workingRate)
		if endFrame > fileTotalFrames {
			endFrame = fileTotalFrames
		}
	} else {
		endFrame = fileTotalFrames
		discovered = toTicks(fileTotalFrames, workingRate)
		hasDiscovered = true
	}
	if startFrame < 0 {
		startFrame = 0
	}
	if endFrame < startFrame {
		endFrame = startFrame
	}

	passageSamples := append([]float32(nil), stereo[startFrame*2:endFrame*2]...)

	var resolvedEnd *tick.Tick
	switch {
	case p.End != nil:
		resolvedEnd = p.End
	case hasDiscovered:
		resolvedEnd = &discovered
	}
	spec := fade.DeriveSpec(p, resolvedEnd, workingRate)
	fade.Apply(passageSamples, spec, 0)

	return &decodedPassage{
		samples:       passageSamples,
		totalFrames:   int64(len(passageSamples) / 2),
		discoveredEnd: discovered,
		hasDiscovered: hasDiscovered,
	}, nil
}

// toTicks converts a frame count to ticks, per internal/boundary's
// toTicks: unreachable overflow for any real file length collapses to 0
// rather than propagating an error through the decode path.
func toTicks(frames, sampleRate int64) tick.Tick {
	t, err := tick.SamplesToTicks(frames, sampleRate)
	if err != nil {
		return 0
	}
	return t
}

// toStereo channel-conforms interleaved PCM to stereo, per spec.md §4.7
// step 5: duplicate mono to both channels; pair-average downmix for N>2
// (even-indexed source channels into left, odd-indexed into right).
func toStereo(samples []float32, channels int) []float32 {
	switch channels {
	case 2:
		return samples
	case 1:
		out := make([]float32, len(samples)*2)
		for i, v := range samples {
			out[2*i] = v
			out[2*i+1] = v
		}
		return out
	default:
		if channels < 1 {
			return nil
		}
		frames := len(samples) / channels
		out := make([]float32, frames*2)
		leftCount, rightCount := 0, 0
		for c := 0; c < channels; c += 2 {
			leftCount++
		}
		for c := 1; c < channels; c += 2 {
			rightCount++
		}
		if leftCount == 0 {
			leftCount = 1
		}
		if rightCount == 0 {
			rightCount = 1
		}
		for f := 0; f < frames; f++ {
			base := f * channels
			var left, right float32
			for c := 0; c < channels; c += 2 {
				left += samples[base+c]
			}
			for c := 1; c < channels; c += 2 {
				right += samples[base+c]
			}
			out[2*f] = left / float32(leftCount)
			out[2*f+1] = right / float32(rightCount)
		}
		return out
	}
}
