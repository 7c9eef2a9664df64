// Package service holds the MCP component embedded in the web host. The
// host starts it before accepting requests and stops it after it has
// stopped accepting them; request handlers only read it.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kratos06/deepwiki-open/internal/dispatch"
	"github.com/kratos06/deepwiki-open/internal/server"
)

// Resolver builds the component on Start.
type Resolver func(ctx context.Context) (*server.Component, error)

// Status is a snapshot of the manager flags.
type Status struct {
	Running     bool `json:"running"`
	Initialized bool `json:"initialized"`
	Ready       bool `json:"ready_for_connections"`
}

// Manager owns at most one component at a time. Running implies a
// component is present.
type Manager struct {
	resolve Resolver
	logger  *slog.Logger

	// startMu serializes Start so the resolver runs once; mu guards the
	// state and is never held while resolving.
	startMu   sync.Mutex
	mu        sync.RWMutex
	component *server.Component
	running   bool
}

// NewManager creates a stopped Manager.
func NewManager(resolve Resolver, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{resolve: resolve, logger: logger}
}

var (
	globalOnce sync.Once
	global     *Manager
)

// Global returns the process-wide Manager. The first call fixes the
// resolver; later arguments are ignored.
func Global(resolve Resolver, logger *slog.Logger) *Manager {
	globalOnce.Do(func() {
		global = NewManager(resolve, logger)
	})
	return global
}

// Start resolves the component and marks the manager running. Calling it
// while running returns true without resolving again. A resolution
// failure is logged and leaves the state unchanged. Status reads are not
// blocked while the component is being built.
func (m *Manager) Start(ctx context.Context) bool {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	if m.Status().Running {
		return true
	}
	m.logger.Info("initializing mcp server components")
	c, err := m.resolveComponent(ctx)
	if err != nil {
		m.logger.Error("failed to initialize mcp server", "error", err)
		return false
	}

	m.mu.Lock()
	m.component = c
	m.running = true
	m.mu.Unlock()
	m.logger.Info("mcp server components initialized")
	return true
}

func (m *Manager) resolveComponent(ctx context.Context) (c *server.Component, err error) {
	if m.resolve == nil {
		return nil, fmt.Errorf("no resolver configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("resolver panicked: %v", r)
		}
	}()
	c, err = m.resolve(ctx)
	if err == nil && c == nil {
		err = fmt.Errorf("resolver returned no component")
	}
	return c, err
}

// Stop releases the component. It is safe to call when not running.
func (m *Manager) Stop() {
	m.mu.Lock()
	c := m.component
	wasRunning := m.running
	m.component = nil
	m.running = false
	m.mu.Unlock()

	if !wasRunning {
		return
	}
	m.logger.Info("stopping mcp server components")
	c.Close()
	m.logger.Info("mcp server components stopped")
}

// Status returns the current flags.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Status{
		Running:     m.running,
		Initialized: m.component != nil,
		Ready:       m.running,
	}
}

// Component returns the running component, or nil.
func (m *Manager) Component() *server.Component {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.component
}

// Info describes the service for status endpoints.
type Info struct {
	Status
	State       string            `json:"status"`
	Description string            `json:"description"`
	Tools       []string          `json:"tools,omitempty"`
	Resources   []string          `json:"resources,omitempty"`
	Prompts     []string          `json:"prompts,omitempty"`
	Usage       map[string]string `json:"usage,omitempty"`
	Note        string            `json:"note,omitempty"`
}

// Info returns the status together with the operation catalogue.
func (m *Manager) Info() Info {
	st := m.Status()
	c := m.Component()
	if !st.Running || c == nil || c.Dispatcher == nil {
		return Info{
			Status:      st,
			State:       "not_running",
			Description: "MCP server is not currently running",
			Note:        "Set ENABLE_MCP_SERVER=true to enable MCP integration",
		}
	}
	cat := c.Dispatcher.Catalogue()
	return Info{
		Status:      st,
		State:       "running",
		Description: "MCP server is running and available for MCP clients",
		Tools:       describe(cat.Tools),
		Resources:   describe(cat.Resources),
		Prompts:     describe(cat.Prompts),
		Usage: map[string]string{
			"http":  "Connect an MCP client to the /mcp endpoint of this server (streamable HTTP)",
			"stdio": "Run: deepwiki mcp --transport stdio",
		},
	}
}

func describe(entries []dispatch.Entry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name+" - "+e.Description)
	}
	return out
}
