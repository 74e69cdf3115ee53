package refresh

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dwdwow/morpho-go/types"
)

type stubSource struct {
	calls atomic.Int32
	fn    func(n int32) ([]types.VaultV2Cap, error)
}

func (s *stubSource) VaultCaps(ctx context.Context, chainID int64, vault string) ([]types.VaultV2Cap, error) {
	return s.fn(s.calls.Add(1))
}

func snapshot(id string) []types.VaultV2Cap {
	return []types.VaultV2Cap{{CapID: id}}
}

func TestRefresh_StoresSnapshot(t *testing.T) {
	src := &stubSource{fn: func(int32) ([]types.VaultV2Cap, error) { return snapshot("0x01"), nil }}
	r := NewCapRefresher(src, 1, "0xvault", nil)

	var updates [][]types.VaultV2Cap
	r.OnUpdate(func(c []types.VaultV2Cap) { updates = append(updates, c) })

	caps, accepted, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.Equal(t, snapshot("0x01"), caps)
	assert.Equal(t, snapshot("0x01"), r.Caps())
	assert.Len(t, updates, 1)

	got := r.Caps()
	got[0].CapID = "mutated"
	assert.Equal(t, "0x01", r.Caps()[0].CapID)
}

func TestRefresh_DiscardsSupersededFetch(t *testing.T) {
	release := make(chan struct{})
	src := &stubSource{fn: func(n int32) ([]types.VaultV2Cap, error) {
		if n == 1 {
			<-release
			return snapshot("0xold"), nil
		}
		return snapshot("0xnew"), nil
	}}
	r := NewCapRefresher(src, 1, "0xvault", nil)

	type result struct {
		caps     []types.VaultV2Cap
		accepted bool
	}
	slow := make(chan result, 1)
	go func() {
		caps, accepted, _ := r.Refresh(context.Background())
		slow <- result{caps, accepted}
	}()
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)

	_, accepted, err := r.Refresh(context.Background())
	require.NoError(t, err)
	assert.True(t, accepted)

	close(release)
	res := <-slow
	assert.False(t, res.accepted)
	assert.Nil(t, res.caps)
	assert.Equal(t, snapshot("0xnew"), r.Caps())
}

func TestRefresh_InvalidateDropsInFlight(t *testing.T) {
	release := make(chan struct{})
	src := &stubSource{fn: func(int32) ([]types.VaultV2Cap, error) {
		<-release
		return snapshot("0x01"), nil
	}}
	r := NewCapRefresher(src, 1, "0xvault", nil)

	done := make(chan bool, 1)
	go func() {
		_, accepted, _ := r.Refresh(context.Background())
		done <- accepted
	}()
	require.Eventually(t, func() bool { return src.calls.Load() == 1 }, time.Second, time.Millisecond)

	r.Invalidate()
	close(release)
	assert.False(t, <-done)
	assert.Empty(t, r.Caps())
}

func TestRefresh_ErrorKeepsPreviousSnapshot(t *testing.T) {
	boom := errors.New("boom")
	src := &stubSource{fn: func(n int32) ([]types.VaultV2Cap, error) {
		if n == 1 {
			return snapshot("0x01"), nil
		}
		return nil, boom
	}}
	r := NewCapRefresher(src, 1, "0xvault", nil)

	_, _, err := r.Refresh(context.Background())
	require.NoError(t, err)
	_, accepted, err := r.Refresh(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.False(t, accepted)
	assert.Equal(t, snapshot("0x01"), r.Caps())
}

func TestRun_RefreshesOnTriggers(t *testing.T) {
	src := &stubSource{fn: func(n int32) ([]types.VaultV2Cap, error) {
		return snapshot(string(rune('a' + n))), nil
	}}
	r := NewCapRefresher(src, 1, "0xvault", nil)

	var updates atomic.Int32
	r.OnUpdate(func([]types.VaultV2Cap) { updates.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	triggers := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, triggers) }()

	require.Eventually(t, func() bool { return updates.Load() == 1 }, time.Second, time.Millisecond)
	triggers <- struct{}{}
	require.Eventually(t, func() bool { return updates.Load() == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, snapshot(string(rune('a'+2))), r.Caps())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestRun_StopsWhenTriggersClose(t *testing.T) {
	src := &stubSource{fn: func(int32) ([]types.VaultV2Cap, error) { return nil, nil }}
	r := NewCapRefresher(src, 1, "0xvault", nil)

	triggers := make(chan struct{})
	close(triggers)
	assert.NoError(t, r.Run(context.Background(), triggers))
	assert.EqualValues(t, 1, src.calls.Load())
}

type fakeReader struct {
	events chan int
	done   chan struct{}
	once   sync.Once
	closed atomic.Bool
}

func newFakeReader() *fakeReader {
	return &fakeReader{events: make(chan int), done: make(chan struct{})}
}

func (f *fakeReader) Read() (int, error) {
	select {
	case v, ok := <-f.events:
		if !ok {
			return 0, io.EOF
		}
		return v, nil
	case <-f.done:
		return 0, errors.New("closed")
	}
}

func (f *fakeReader) Close() error {
	f.once.Do(func() { close(f.done) })
	f.closed.Store(true)
	return nil
}

func TestPump_CoalescesBursts(t *testing.T) {
	reader := newFakeReader()
	triggers := Pump[int](context.Background(), reader, nil)

	for i := 0; i < 3; i++ {
		reader.events <- i
	}
	close(reader.events)

	n := 0
	for range triggers {
		n++
	}
	assert.Equal(t, 1, n)
	assert.True(t, reader.closed.Load())
}

func TestPump_StopsOnCancel(t *testing.T) {
	reader := newFakeReader()
	ctx, cancel := context.WithCancel(context.Background())
	triggers := Pump[int](ctx, reader, nil)

	cancel()
	select {
	case _, ok := <-triggers:
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("pump did not stop")
	}
	assert.True(t, reader.closed.Load())
}
