package keycache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type engineStub struct {
	provider string
	model    string
}

func TestKey(t *testing.T) {
	assert.Equal(t, "github:https://github.com/a/b", Key("github", "https://github.com/a/b"))
	// No normalization: a trailing slash is a different key.
	assert.NotEqual(t, Key("github", "https://github.com/a/b"), Key("github", "https://github.com/a/b/"))
}

func TestGetOrCreate_ReusesExistingValue(t *testing.T) {
	c := New[*engineStub]()
	ctx := context.Background()
	key := Key("github", "https://github.com/a/b")

	var calls atomic.Int32
	first, err := c.GetOrCreate(ctx, key, func(context.Context) (*engineStub, error) {
		calls.Add(1)
		return &engineStub{provider: "google", model: "gemini"}, nil
	})
	require.NoError(t, err)

	second, err := c.GetOrCreate(ctx, key, func(context.Context) (*engineStub, error) {
		calls.Add(1)
		return &engineStub{provider: "openai", model: "gpt-4o"}, nil
	})
	require.NoError(t, err)

	assert.Same(t, first, second)
	assert.Equal(t, "google", second.provider, "first construction's configuration wins")
	assert.Equal(t, int32(1), calls.Load(), "second constructor must never run")
}

func TestGetOrCreate_ConcurrentFirstAccess(t *testing.T) {
	const workers = 16
	c := New[*engineStub]()
	key := Key("github", "https://github.com/o/r")

	var calls atomic.Int32
	start := make(chan struct{})
	results := make([]*engineStub, workers)
	errs := make([]error, workers)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			results[i], errs[i] = c.GetOrCreate(context.Background(), key, func(context.Context) (*engineStub, error) {
				calls.Add(1)
				time.Sleep(50 * time.Millisecond)
				return &engineStub{provider: fmt.Sprintf("p%d", i)}, nil
			})
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, results[0], results[i], "worker %d got a different instance", i)
	}
	assert.Equal(t, 1, c.Len())
}

func TestGetOrCreate_UnrelatedKeysDoNotBlock(t *testing.T) {
	c := New[string]()
	release := make(chan struct{})
	slowStarted := make(chan struct{})

	go func() {
		_, _ = c.GetOrCreate(context.Background(), "slow", func(context.Context) (string, error) {
			close(slowStarted)
			<-release
			return "slow", nil
		})
	}()
	<-slowStarted
	defer close(release)

	done := make(chan struct{})
	go func() {
		v, err := c.GetOrCreate(context.Background(), "fast", func(context.Context) (string, error) {
			return "fast", nil
		})
		assert.NoError(t, err)
		assert.Equal(t, "fast", v)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("construction of an unrelated key blocked")
	}
}

func TestGetOrCreate_FailureNotStored(t *testing.T) {
	c := New[string]()
	boom := errors.New("clone failed")

	_, err := c.GetOrCreate(context.Background(), "k", func(context.Context) (string, error) {
		return "", boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	v, err := c.GetOrCreate(context.Background(), "k", func(context.Context) (string, error) {
		return "ok", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", v)
}

func TestGetOrCreate_CallerCancellationDoesNotAbortConstruction(t *testing.T) {
	c := New[string]()
	release := make(chan struct{})
	ctorDone := make(chan struct{})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := c.GetOrCreate(ctx, "k", func(cctx context.Context) (string, error) {
			defer close(ctorDone)
			<-release
			if cctx.Err() != nil {
				return "", cctx.Err()
			}
			return "built", nil
		})
		errCh <- err
	}()

	// Give the goroutine time to enter the flight, then abandon it.
	time.Sleep(20 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-errCh, context.Canceled)

	close(release)
	<-ctorDone

	require.Eventually(t, func() bool {
		v, ok := c.Get("k")
		return ok && v == "built"
	}, time.Second, 10*time.Millisecond)
}

func TestKeys_Sorted(t *testing.T) {
	c := New[int]()
	for i, k := range []string{"gitlab:x", "github:b", "github:a"} {
		i := i
		_, err := c.GetOrCreate(context.Background(), k, func(context.Context) (int, error) { return i, nil })
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"github:a", "github:b", "gitlab:x"}, c.Keys())
}

func TestGetOrCreate_ConstructorPanicBecomesError(t *testing.T) {
	c := New[string]()
	key := Key("github", "https://github.com/a/b")

	_, err := c.GetOrCreate(context.Background(), key, func(context.Context) (string, error) {
		panic("engine construction blew up")
	})
	var pe *PanicError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, key, pe.Key)
	assert.Contains(t, err.Error(), "engine construction blew up")
	assert.Equal(t, 0, c.Len(), "a panicked construction is not cached")

	v, err := c.GetOrCreate(context.Background(), key, func(context.Context) (string, error) {
		return "built", nil
	})
	require.NoError(t, err)
	assert.Equal(t, "built", v)
}
