package validation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeDecoder struct{ pushed int64 }

func (f *fakeDecoder) FramesPushed() int64 { return f.pushed }

type fakeBuffer struct{ written int64 }

func (f *fakeBuffer) FramesWritten() int64 { return f.written }

type fakeMixer struct{ read, output int64 }

func (f *fakeMixer) FramesRead() int64   { return f.read }
func (f *fakeMixer) FramesOutput() int64 { return f.output }

type fakeSink struct{ messages []string }

func (f *fakeSink) ValidationFailure(message string) { f.messages = append(f.messages, message) }

func TestCheckPassesWithinTolerance(t *testing.T) {
	decoder := &fakeDecoder{pushed: 1000}
	buffer := &fakeBuffer{written: 998}
	mixer := &fakeMixer{read: 500, output: 501}
	sink := &fakeSink{}

	c := New(Config{Enabled: true, ToleranceFrames: 4}, decoder, buffer, mixer, sink)
	c.check()
	c.check()
	c.check()

	assert.Empty(t, sink.messages)
}

func TestCheckEscalatesAfterConsecutiveFailures(t *testing.T) {
	decoder := &fakeDecoder{pushed: 10000}
	buffer := &fakeBuffer{written: 0}
	sink := &fakeSink{}

	c := New(Config{Enabled: true, ToleranceFrames: 4}, decoder, buffer, nil, sink)

	c.check()
	assert.Empty(t, sink.messages, "first failure should not escalate yet")
	c.check()
	assert.Empty(t, sink.messages, "second failure should not escalate yet")
	c.check()
	require.Len(t, sink.messages, 1, "third consecutive failure should escalate")
}

func TestCheckResetsStreakOnRecovery(t *testing.T) {
	decoder := &fakeDecoder{pushed: 10000}
	buffer := &fakeBuffer{written: 0}
	sink := &fakeSink{}

	c := New(Config{Enabled: true, ToleranceFrames: 4}, decoder, buffer, nil, sink)
	c.check()
	c.check()
	buffer.written = 10000 // recovers
	c.check()
	c.check()
	c.check()

	assert.Empty(t, sink.messages, "a recovered interval should reset the failure streak")
}

func TestCheckSkipsUnwiredStages(t *testing.T) {
	sink := &fakeSink{}
	c := New(Config{Enabled: true}, nil, nil, nil, sink)
	c.check()
	c.check()
	c.check()
	assert.Empty(t, sink.messages)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	decoder := &fakeDecoder{}
	buffer := &fakeBuffer{}
	c := New(Config{Enabled: true, Interval: 5 * time.Millisecond}, decoder, buffer, nil, &fakeSink{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after context cancellation")
	}
}

func TestRunIsNoOpWhenDisabled(t *testing.T) {
	c := New(Config{Enabled: false}, nil, nil, nil, nil)
	done := make(chan struct{})
	go func() {
		c.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run with Enabled=false should return immediately")
	}
}
