package audiodevice

import "math"

// SampleFormat is a device-negotiated output sample encoding.
type SampleFormat int

const (
	FormatF32 SampleFormat = iota
	FormatI16
	FormatU16
)

// BytesPerSample returns the byte width of one channel sample in format.
func (f SampleFormat) BytesPerSample() int {
	switch f {
	case FormatI16, FormatU16:
		return 2
	default:
		return 4
	}
}

// BytesPerFrame returns the byte width of one stereo frame in format.
func (f SampleFormat) BytesPerFrame() int {
	return f.BytesPerSample() * 2
}

// wireFormat maps a negotiated output format onto one malgo/miniaudio can
// actually carry on the wire. miniaudio has no native unsigned-16 format
// (only u8/s16/s24/s32/f32); FormatU16 is accepted at the Config/API level
// to match spec.md's f32/i16/u16 contract, but downgraded to signed 16-bit
// for the actual malgo device negotiation and byte encoding, per the
// DESIGN.md note on this package.
func (f SampleFormat) wireFormat() SampleFormat {
	if f == FormatU16 {
		return FormatI16
	}
	return f
}

// clampVolume restricts volume to the process-wide [0.0, 1.0] range, per
// spec.md §4.11.
func clampVolume(volume float64) float64 {
	if volume < 0 {
		return 0
	}
	if volume > 1 {
		return 1
	}
	return volume
}

// writeFrame applies volume to one stereo sample pair and encodes it into
// dst (which must be at least format.BytesPerFrame() long) in the
// negotiated device format. This is the device callback's only per-sample
// work: no allocation, matching spec.md §4.11's hard-realtime constraint.
func writeFrame(dst []byte, l, r float32, format SampleFormat, volume float64) {
	v := float32(clampVolume(volume))
	l *= v
	r *= v

	switch format {
	case FormatI16:
		putI16(dst[0:2], l)
		putI16(dst[2:4], r)
	case FormatU16:
		putU16(dst[0:2], l)
		putU16(dst[2:4], r)
	default:
		putF32(dst[0:4], l)
		putF32(dst[4:8], r)
	}
}

func putF32(dst []byte, v float32) {
	bits := math.Float32bits(v)
	dst[0] = byte(bits)
	dst[1] = byte(bits >> 8)
	dst[2] = byte(bits >> 16)
	dst[3] = byte(bits >> 24)
}

func putI16(dst []byte, v float32) {
	s := clampSample(v) * 32767.0
	i := int16(s)
	dst[0] = byte(i)
	dst[1] = byte(i >> 8)
}

func putU16(dst []byte, v float32) {
	s := (clampSample(v) + 1.0) / 2.0 * 65535.0
	u := uint16(s)
	dst[0] = byte(u)
	dst[1] = byte(u >> 8)
}

func clampSample(v float32) float32 {
	if v > 1.0 {
		return 1.0
	}
	if v < -1.0 {
		return -1.0
	}
	return v
}

// readF32Frame decodes one float32 stereo frame (8 bytes, LE) as staged by
// the mixer feeder. The staging buffer always carries f32: format
// conversion to the negotiated device format happens here, in the
// callback, not upstream.
func readF32Frame(src []byte) (l, r float32) {
	l = math.Float32frombits(uint32(src[0]) | uint32(src[1])<<8 | uint32(src[2])<<16 | uint32(src[3])<<24)
	r = math.Float32frombits(uint32(src[4]) | uint32(src[5])<<8 | uint32(src[6])<<16 | uint32(src[7])<<24)
	return l, r
}
