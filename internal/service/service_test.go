package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kratos06/deepwiki-open/internal/config"
	"github.com/kratos06/deepwiki-open/internal/logging"
	"github.com/kratos06/deepwiki-open/internal/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingResolver(t *testing.T, calls *atomic.Int32) Resolver {
	t.Helper()
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	return func(ctx context.Context) (*server.Component, error) {
		calls.Add(1)
		return server.New(server.Deps{Config: cfg, Logger: logging.Discard()})
	}
}

func TestStart_Idempotent(t *testing.T) {
	var calls atomic.Int32
	m := NewManager(countingResolver(t, &calls), logging.Discard())
	defer m.Stop()

	require.True(t, m.Start(context.Background()))
	first := m.Component()
	require.True(t, m.Start(context.Background()))

	assert.Equal(t, int32(1), calls.Load())
	assert.Same(t, first, m.Component())
	assert.Equal(t, Status{Running: true, Initialized: true, Ready: true}, m.Status())
}

func TestStart_Concurrent(t *testing.T) {
	var calls atomic.Int32
	m := NewManager(countingResolver(t, &calls), logging.Discard())
	defer m.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, m.Start(context.Background()))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), calls.Load())
}

func TestStatus_NotBlockedWhileStarting(t *testing.T) {
	var calls atomic.Int32
	build := countingResolver(t, &calls)
	entered := make(chan struct{})
	release := make(chan struct{})
	m := NewManager(func(ctx context.Context) (*server.Component, error) {
		close(entered)
		<-release
		return build(ctx)
	}, logging.Discard())
	defer m.Stop()

	started := make(chan bool, 1)
	go func() { started <- m.Start(context.Background()) }()
	<-entered

	read := make(chan Status, 1)
	go func() {
		_ = m.Component()
		read <- m.Status()
	}()
	select {
	case st := <-read:
		assert.Equal(t, Status{}, st)
	case <-time.After(time.Second):
		t.Fatal("Status blocked while the component was being built")
	}

	close(release)
	assert.True(t, <-started)
	assert.True(t, m.Status().Running)
}

func TestStart_FailureLeavesStateUnchanged(t *testing.T) {
	m := NewManager(func(ctx context.Context) (*server.Component, error) {
		return nil, errors.New("no config")
	}, logging.Discard())

	assert.False(t, m.Start(context.Background()))
	assert.Equal(t, Status{}, m.Status())
	assert.Nil(t, m.Component())
}

func TestStart_NilComponentAndPanicAreFailures(t *testing.T) {
	m := NewManager(func(ctx context.Context) (*server.Component, error) { return nil, nil }, logging.Discard())
	assert.False(t, m.Start(context.Background()))

	m = NewManager(func(ctx context.Context) (*server.Component, error) { panic("boom") }, logging.Discard())
	assert.False(t, m.Start(context.Background()))
	assert.False(t, m.Status().Running)

	assert.False(t, NewManager(nil, logging.Discard()).Start(context.Background()))
}

func TestStop_Idempotent(t *testing.T) {
	var calls atomic.Int32
	m := NewManager(countingResolver(t, &calls), logging.Discard())

	m.Stop()
	require.True(t, m.Start(context.Background()))
	m.Stop()
	m.Stop()

	assert.Equal(t, Status{}, m.Status())
	assert.Nil(t, m.Component())

	// A restart resolves a fresh component.
	require.True(t, m.Start(context.Background()))
	assert.Equal(t, int32(2), calls.Load())
	m.Stop()
}

func TestInfo(t *testing.T) {
	var calls atomic.Int32
	m := NewManager(countingResolver(t, &calls), logging.Discard())

	info := m.Info()
	assert.Equal(t, "not_running", info.State)
	assert.Contains(t, info.Note, "ENABLE_MCP_SERVER")
	assert.Empty(t, info.Tools)

	require.True(t, m.Start(context.Background()))
	defer m.Stop()
	info = m.Info()
	assert.Equal(t, "running", info.State)
	assert.True(t, info.Ready)
	require.Len(t, info.Tools, 3)
	assert.True(t, strings.HasPrefix(info.Tools[0], "ask_deepwiki - "))
	assert.Len(t, info.Resources, 3)
	assert.Len(t, info.Prompts, 4)
	assert.NotEmpty(t, info.Usage)
}

func TestGlobal_SingleInstance(t *testing.T) {
	a := Global(nil, logging.Discard())
	b := Global(func(ctx context.Context) (*server.Component, error) { return nil, nil }, nil)
	assert.Same(t, a, b)
}
