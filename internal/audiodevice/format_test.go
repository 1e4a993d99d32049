package audiodevice

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWriteFrameF32RoundTrips(t *testing.T) {
	dst := make([]byte, FormatF32.BytesPerFrame())
	writeFrame(dst, 0.5, -0.25, FormatF32, 1.0)

	l, r := readF32Frame(dst)
	assert.InDelta(t, 0.5, l, 1e-6)
	assert.InDelta(t, -0.25, r, 1e-6)
}

func TestWriteFrameAppliesVolume(t *testing.T) {
	dst := make([]byte, FormatF32.BytesPerFrame())
	writeFrame(dst, 1.0, 1.0, FormatF32, 0.5)

	l, r := readF32Frame(dst)
	assert.InDelta(t, 0.5, l, 1e-6)
	assert.InDelta(t, 0.5, r, 1e-6)
}

func TestWriteFrameClampsVolumeAboveOne(t *testing.T) {
	dst := make([]byte, FormatF32.BytesPerFrame())
	writeFrame(dst, 1.0, 1.0, FormatF32, 5.0)

	l, _ := readF32Frame(dst)
	assert.InDelta(t, 1.0, l, 1e-6)
}

func TestWriteFrameI16FullScale(t *testing.T) {
	dst := make([]byte, FormatI16.BytesPerFrame())
	writeFrame(dst, 1.0, -1.0, FormatI16, 1.0)

	left := int16(uint16(dst[0]) | uint16(dst[1])<<8)
	right := int16(uint16(dst[2]) | uint16(dst[3])<<8)
	assert.Equal(t, int16(32767), left)
	assert.Equal(t, int16(-32767), right)
}

func TestWriteFrameU16MidpointIsSilence(t *testing.T) {
	dst := make([]byte, FormatU16.BytesPerFrame())
	writeFrame(dst, 0.0, 0.0, FormatU16, 1.0)

	left := uint16(dst[0]) | uint16(dst[1])<<8
	assert.InDelta(t, 32767.5, float64(left), 1.0)
}

func TestBytesPerFrameByFormat(t *testing.T) {
	assert.Equal(t, 8, FormatF32.BytesPerFrame())
	assert.Equal(t, 4, FormatI16.BytesPerFrame())
	assert.Equal(t, 4, FormatU16.BytesPerFrame())
}
