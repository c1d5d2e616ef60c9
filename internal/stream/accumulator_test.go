package stream

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeedAccumulatesInOrder(t *testing.T) {
	var seen []string
	acc := NewAccumulator(WithOnText(func(s string) { seen = append(seen, s) }))

	assert.True(t, acc.Feed("Hel", false))
	assert.False(t, acc.Feed("lo", true))

	res, err := acc.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Hello", res.Text)
	assert.False(t, res.Stopped)
	assert.Equal(t, []string{"Hel", "lo"}, seen)
}

func TestFeedAfterFinishIsIgnored(t *testing.T) {
	acc := NewAccumulator()
	acc.Feed("done", true)

	assert.False(t, acc.Feed(" more", false))
	assert.False(t, acc.Feed(" again", true))

	res, _ := acc.Wait(context.Background())
	assert.Equal(t, "done", res.Text)
}

func TestStopForcesNextCallbackFinal(t *testing.T) {
	acc := NewAccumulator()
	acc.Feed("partial", false)
	acc.Stop()

	select {
	case <-acc.Done():
		t.Fatal("expected accumulator to wait for the next callback")
	default:
	}

	assert.False(t, acc.Feed(" ignored", false))
	assert.False(t, acc.Feed(" ignored too", true))

	res, err := acc.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "partial", res.Text)
	assert.True(t, res.Stopped)
}

func TestStopBeforeAnyCallback(t *testing.T) {
	var resolutions int32
	acc := NewAccumulator()
	go func() {
		<-acc.Done()
		atomic.AddInt32(&resolutions, 1)
	}()

	acc.Stop()
	acc.Stop()
	acc.Feed("late", false)
	acc.Feed("later", true)

	res, err := acc.Wait(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Text)
	assert.True(t, res.Stopped)

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&resolutions) == 1 }, time.Second, 5*time.Millisecond)
}

func TestFailReleasesAndSurfacesError(t *testing.T) {
	acc := NewAccumulator()
	acc.Feed("half", false)
	boom := errors.New("engine exploded")
	acc.Fail(boom)
	acc.Fail(errors.New("second failure"))

	res, err := acc.Wait(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "half", res.Text)
	assert.False(t, acc.Feed("x", true))
}

func TestElapsedUsesStart(t *testing.T) {
	acc := NewAccumulator(WithStart(time.Now().Add(-2 * time.Second)))
	acc.Feed("x", true)
	res, _ := acc.Wait(context.Background())
	assert.GreaterOrEqual(t, res.Elapsed, 2*time.Second)
}

func TestWaitHonorsContext(t *testing.T) {
	acc := NewAccumulator()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := acc.Wait(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConsume(t *testing.T) {
	chunks := make(chan Chunk, 3)
	chunks <- Chunk{Text: "Hel"}
	chunks <- Chunk{Text: "lo", Final: true, Usage: &Usage{Prompt: 3, Completion: 2, Total: 5}}
	chunks <- Chunk{Text: "!"}

	res, err := NewAccumulator().Consume(context.Background(), chunks)
	require.NoError(t, err)
	assert.Equal(t, "Hello", res.Text)
	require.NotNil(t, res.Usage)
	assert.Equal(t, 5, res.Usage.Total)
}

func TestConsumeClosedChannelFinishes(t *testing.T) {
	chunks := make(chan Chunk, 1)
	chunks <- Chunk{Text: "only"}
	close(chunks)

	res, err := NewAccumulator().Consume(context.Background(), chunks)
	require.NoError(t, err)
	assert.Equal(t, "only", res.Text)
}

func TestConsumeError(t *testing.T) {
	chunks := make(chan Chunk, 2)
	chunks <- Chunk{Text: "a"}
	chunks <- Chunk{Err: errors.New("stream broke")}

	res, err := NewAccumulator().Consume(context.Background(), chunks)
	assert.EqualError(t, err, "stream broke")
	assert.Equal(t, "a", res.Text)
}

func TestConsumeStop(t *testing.T) {
	chunks := make(chan Chunk)
	accepted := make(chan struct{}, 1)
	acc := NewAccumulator(WithOnText(func(string) { accepted <- struct{}{} }))

	type out struct {
		res Result
		err error
	}
	done := make(chan out, 1)
	go func() {
		res, err := acc.Consume(context.Background(), chunks)
		done <- out{res, err}
	}()

	chunks <- Chunk{Text: "first"}
	<-accepted
	acc.Stop()

	select {
	case o := <-done:
		require.NoError(t, o.err)
		assert.Equal(t, "first", o.res.Text)
		assert.True(t, o.res.Stopped)
	case <-time.After(time.Second):
		t.Fatal("Consume did not return after Stop")
	}
}

func TestConsumeContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	chunks := make(chan Chunk)
	cancel()

	_, err := NewAccumulator().Consume(ctx, chunks)
	assert.ErrorIs(t, err, context.Canceled)
}
