// Package pcmfrontend decodes whole audio files to float32 PCM. DecodeMono
// downmixes for the boundary detector and amplitude analyzer, which both
// need full-file (or full-range) mono PCM rather than realtime chunked
// decode. DecodeInterleaved is the lower-level entry point decodepool
// builds its own chunked, resumable, stereo-conforming front-end on top of.
package pcmfrontend

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/tphakala/flac"

	"github.com/wkmp/wkmp-ap/internal/perrors"
)

// Decoded holds an entire file's audio, downmixed to mono.
type Decoded struct {
	Mono       []float32
	SampleRate int
	Channels   int
}

// Interleaved holds an entire file's audio at its native channel count,
// samples interleaved frame-major (L0 R0 ... or ch0 ch1 ch2 ... per frame).
type Interleaved struct {
	Samples    []float32
	SampleRate int
	Channels   int
}

// DecodeMono decodes path to mono float32 PCM, dispatching on file
// extension. Supported formats: WAV (any bit depth go-audio/wav reads) and
// FLAC.
func DecodeMono(path string) (*Decoded, error) {
	in, err := DecodeInterleaved(path)
	if err != nil {
		return nil, err
	}
	return &Decoded{
		Mono:       downmixMono(in.Samples, in.Channels),
		SampleRate: in.SampleRate,
		Channels:   in.Channels,
	}, nil
}

// DecodeInterleaved decodes path to its native-channel-count interleaved
// float32 PCM, dispatching on file extension.
func DecodeInterleaved(path string) (*Interleaved, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		return decodeWAV(path)
	case ".flac":
		return decodeFLAC(path)
	default:
		return nil, perrors.New(fmt.Errorf("unsupported format %q", filepath.Ext(path))).
			Category(perrors.CategoryDecode).
			FileContext(path, 0).
			Build()
	}
}

func decodeWAV(path string) (*Interleaved, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, perrors.FileError(err, path, 0)
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, perrors.New(fmt.Errorf("not a valid WAV file")).
			Category(perrors.CategoryDecode).FileContext(path, 0).Build()
	}

	channels := int(decoder.NumChans)
	if channels < 1 {
		channels = 1
	}

	var divisor float32
	switch decoder.BitDepth {
	case 8:
		divisor = 128.0
	case 16:
		divisor = 32768.0
	case 24:
		divisor = 8388608.0
	case 32:
		divisor = 2147483648.0
	default:
		return nil, perrors.New(fmt.Errorf("unsupported bit depth %d", decoder.BitDepth)).
			Category(perrors.CategoryDecode).FileContext(path, 0).Build()
	}

	const frameBatch = 8192
	buf := &audio.IntBuffer{
		Data:   make([]int, frameBatch*channels),
		Format: &audio.Format{SampleRate: int(decoder.SampleRate), NumChannels: channels},
	}

	samples := make([]float32, 0, 1<<20)
	for {
		n, err := decoder.PCMBuffer(buf)
		if err != nil && err != io.EOF {
			return nil, perrors.FileError(err, path, 0)
		}
		if n == 0 {
			break
		}
		samples = append(samples, toFloat32(buf.Data[:n], divisor)...)
		if n < len(buf.Data) {
			break
		}
	}

	return &Interleaved{
		Samples:    samples,
		SampleRate: int(decoder.SampleRate),
		Channels:   channels,
	}, nil
}

func toFloat32(data []int, divisor float32) []float32 {
	out := make([]float32, len(data))
	for i, v := range data {
		out[i] = float32(v) / divisor
	}
	return out
}

// downmixMono averages interleaved samples across channels into mono,
// matching the boundary detector's mix_to_mono_f32 reference behavior.
func downmixMono(data []float32, channels int) []float32 {
	if channels <= 1 {
		out := make([]float32, len(data))
		copy(out, data)
		return out
	}
	frames := len(data) / channels
	out := make([]float32, frames)
	for f := 0; f < frames; f++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += data[f*channels+c]
		}
		out[f] = sum / float32(channels)
	}
	return out
}

func decodeFLAC(path string) (*Interleaved, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, perrors.FileError(err, path, 0)
	}
	defer file.Close()

	stream, err := flac.New(file)
	if err != nil {
		return nil, perrors.New(err).Category(perrors.CategoryDecode).FileContext(path, 0).Build()
	}

	channels := int(stream.Info.NChannels)
	if channels < 1 {
		channels = 1
	}
	bitsPerSample := stream.Info.BitsPerSample
	maxVal := float32(int64(1) << (bitsPerSample - 1))

	samples := make([]float32, 0, 1<<20)
	for {
		frame, err := stream.ParseNext()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A frame decode error ends decoding the same way EOF does: the
			// frames decoded before it are returned and the error is dropped.
			break
		}
		numSamples := len(frame.Subframes[0].Samples)
		for i := 0; i < numSamples; i++ {
			for c := 0; c < channels && c < len(frame.Subframes); c++ {
				samples = append(samples, float32(frame.Subframes[c].Samples[i])/maxVal)
			}
		}
	}

	return &Interleaved{
		Samples:    samples,
		SampleRate: int(stream.Info.SampleRate),
		Channels:   channels,
	}, nil
}
