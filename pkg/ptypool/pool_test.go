package ptypool

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBroadcasterFanOut(t *testing.T) {
	b := newBroadcaster()
	id1, ch1 := b.Subscribe()
	id2, ch2 := b.Subscribe()
	defer b.Unsubscribe(id1)
	defer b.Unsubscribe(id2)

	b.Publish([]byte("hello"))

	msg1 := <-ch1
	msg2 := <-ch2
	assert.Equal(t, "hello", string(msg1.Data))
	assert.Equal(t, "hello", string(msg2.Data))
}

func TestBroadcasterLaggingSubscriberGetsMarker(t *testing.T) {
	b := newBroadcaster()
	id, ch := b.Subscribe()
	defer b.Unsubscribe(id)

	for i := 0; i < broadcastRingSize; i++ {
		b.Publish([]byte("x"))
	}
	// the ring is now full; one more publish should produce a Lagged
	// marker rather than blocking.
	done := make(chan struct{})
	go func() {
		b.Publish([]byte("overflow"))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber channel")
	}

	drainedLagged := false
	for i := 0; i < broadcastRingSize; i++ {
		if msg := <-ch; msg.Lagged {
			drainedLagged = true
		}
	}
	assert.True(t, drainedLagged)
}

func TestUnboundedQueuePreservesOrderAndDoesNotBlock(t *testing.T) {
	q := newUnboundedQueue()
	defer q.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10000; i++ {
			q.Push([]byte{byte(i % 256)})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Push blocked under load")
	}

	for i := 0; i < 10000; i++ {
		got := <-q.out
		assert.Equal(t, byte(i%256), got[0])
	}
}

func TestResolveShellPrefersBash(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "bin"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bin", "bash"), []byte("x"), 0o755))
	assert.Equal(t, "/bin/bash", resolveShell(dir))
}

func TestResolveShellFallsBackToSh(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "/bin/sh", resolveShell(dir))
}

func TestSessionConnectDisconnectTracksIdle(t *testing.T) {
	s := &Session{broadcaster: newBroadcaster(), input: newUnboundedQueue()}
	defer s.input.Close()

	s.connect()
	_, idle := s.idleFor(time.Now())
	assert.False(t, idle)

	s.disconnect()
	d, idle := s.idleFor(time.Now().Add(time.Second))
	assert.True(t, idle)
	assert.GreaterOrEqual(t, d, time.Second)
}

func TestAttachReusesLiveSession(t *testing.T) {
	p := New(Config{SweepInterval: time.Hour, IdleTimeout: time.Hour})
	defer p.Close()

	spec := AttachSpec{Key: "demo"}
	s1, err := p.Attach(spec)
	require.NoError(t, err)

	s2, err := p.Attach(spec)
	require.NoError(t, err)
	assert.Same(t, s1, s2)

	p.Detach(spec.Key)
	p.Detach(spec.Key)
}

func TestSweepRemovesIdleSessionsPastTimeout(t *testing.T) {
	p := New(Config{SweepInterval: 20 * time.Millisecond, IdleTimeout: 30 * time.Millisecond})
	defer p.Close()

	spec := AttachSpec{Key: "sweep-me"}
	_, err := p.Attach(spec)
	require.NoError(t, err)
	p.Detach(spec.Key)

	require.Eventually(t, func() bool {
		_, ok := p.Get(spec.Key)
		return !ok
	}, 2*time.Second, 10*time.Millisecond)
}
