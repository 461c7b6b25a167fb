package mcp

import (
	"context"
	"sort"
	"sync"
	"time"

	mcpgo "github.com/mark3labs/mcp-go/mcp"

	"github.com/parleyhq/parley/logging"
)

const (
	// DefaultMaxIdle is how long an unused session survives before the
	// health checker reaps it.
	DefaultMaxIdle = time.Hour
	// DefaultProbeInterval is the health checker's cycle time.
	DefaultProbeInterval = 5 * time.Minute
	// DefaultProbeTimeout bounds a single ping.
	DefaultProbeTimeout = 10 * time.Second
)

// Options holds configuration overrides passed to NewSessionPool().
type Options struct {
	// Logger receives session lifecycle and probe events.
	Logger logging.Logger
	// Dial establishes new server connections. The default launches the
	// server script as a subprocess and speaks MCP over stdio.
	Dial Dialer
	// MaxIdle is the idle time after which the health checker reaps a
	// session.
	MaxIdle time.Duration
	// ProbeTimeout bounds one health probe.
	ProbeTimeout time.Duration
}

// SessionPool manages one Session per server key. Sessions are created on
// first acquire, reused while healthy, reconnected lazily after a failure
// and reaped by the background health checker once idle for too long.
type SessionPool struct {
	mu       sync.Mutex
	sessions map[string]*Session

	logger       logging.Logger
	dial         Dialer
	maxIdle      time.Duration
	probeTimeout time.Duration

	checkerStop chan struct{}
	checkerDone chan struct{}
}

// NewSessionPool creates an empty pool.
func NewSessionPool(optFns ...func(o *Options)) *SessionPool {
	opts := Options{
		Logger:       logging.NoOpLogger{},
		Dial:         stdioDial,
		MaxIdle:      DefaultMaxIdle,
		ProbeTimeout: DefaultProbeTimeout,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &SessionPool{
		sessions:     make(map[string]*Session),
		logger:       opts.Logger,
		dial:         opts.Dial,
		maxIdle:      opts.MaxIdle,
		probeTimeout: opts.ProbeTimeout,
	}
}

// Acquire returns a healthy session for the server key, connecting or
// reconnecting as needed. Creation is serialized per key: concurrent
// acquires for the same server share one connection attempt's outcome
// rather than racing to spawn duplicates. A failed attempt leaves the
// session unhealthy and surfaces as *SessionUnavailableError; the next
// acquire retries.
func (p *SessionPool) Acquire(ctx context.Context, serverPath string) (*Session, error) {
	for {
		p.mu.Lock()
		s, ok := p.sessions[serverPath]
		if !ok {
			s = &Session{serverPath: serverPath, state: StateConnecting}
			p.sessions[serverPath] = s
		}
		p.mu.Unlock()

		s.mu.Lock()
		if s.state == StateClosed {
			// Closed sessions are never revived. Drop the stale entry and
			// start over with a fresh one.
			s.mu.Unlock()
			p.remove(serverPath, s)
			continue
		}
		if s.state == StateHealthy {
			s.lastUsed = time.Now()
			s.mu.Unlock()
			return s, nil
		}

		err := p.connectLocked(ctx, s)
		s.mu.Unlock()

		if err != nil {
			return nil, err
		}
		return s, nil
	}
}

// connectLocked establishes the transport and caches the remote catalog.
// Callers hold s.mu.
func (p *SessionPool) connectLocked(ctx context.Context, s *Session) error {
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}

	s.state = StateConnecting
	p.logger.Debug("mcp.session.connecting", "server", s.serverPath)

	start := time.Now()

	conn, err := p.dial(ctx, s.serverPath)
	if err != nil {
		s.state = StateUnhealthy
		p.logger.Error("mcp.session.connect_failed", "server", s.serverPath, "error", err.Error())
		return &SessionUnavailableError{ServerPath: s.serverPath, Err: err}
	}

	toolsRes, err := conn.ListTools(ctx, mcpgo.ListToolsRequest{})
	if err != nil {
		_ = conn.Close()
		s.state = StateUnhealthy
		p.logger.Error("mcp.session.connect_failed", "server", s.serverPath, "error", err.Error())
		return &SessionUnavailableError{ServerPath: s.serverPath, Err: err}
	}

	// Servers without the resources capability reject the list call; treat
	// that as an empty catalog rather than a broken session.
	var resources []mcpgo.Resource
	if resourcesRes, err := conn.ListResources(ctx, mcpgo.ListResourcesRequest{}); err != nil {
		p.logger.Debug("mcp.session.no_resources", "server", s.serverPath, "error", err.Error())
	} else {
		resources = resourcesRes.Resources
	}

	now := time.Now()
	s.conn = conn
	s.tools = toolsRes.Tools
	s.resources = resources
	s.state = StateHealthy
	s.lastUsed = now
	s.lastProbe = now

	p.logger.Info("mcp.session.connected",
		"server", s.serverPath,
		"tools", len(s.tools),
		"resources", len(s.resources),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Close shuts down the session for one server key. It reports whether a
// session existed.
func (p *SessionPool) Close(serverPath string) bool {
	p.mu.Lock()
	s, ok := p.sessions[serverPath]
	delete(p.sessions, serverPath)
	p.mu.Unlock()

	if !ok {
		return false
	}
	p.closeSession(s)
	p.logger.Info("mcp.session.closed", "server", serverPath)
	return true
}

// CloseAll shuts down every pooled session and returns how many were open.
// It is idempotent: a second call finds an empty pool and returns zero.
// Acquiring any key afterwards dials a fresh connection.
func (p *SessionPool) CloseAll() int {
	p.mu.Lock()
	sessions := p.sessions
	p.sessions = make(map[string]*Session)
	p.mu.Unlock()

	closed := 0
	for _, s := range sessions {
		if p.closeSession(s) {
			closed++
		}
	}

	if closed > 0 {
		p.logger.Info("mcp.pool.closed", "sessions", closed)
	}
	return closed
}

// closeSession releases the transport and reports whether the session was
// still open.
func (p *SessionPool) closeSession(s *Session) bool {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	wasOpen := s.state != StateClosed
	s.state = StateClosed
	s.mu.Unlock()

	if conn != nil {
		if err := conn.Close(); err != nil {
			p.logger.Warn("mcp.session.close_failed", "server", s.serverPath, "error", err.Error())
		}
	}
	return wasOpen
}

// remove deletes the map entry only if it still points at the same session,
// so a concurrent re-acquire is never clobbered.
func (p *SessionPool) remove(serverPath string, s *Session) {
	p.mu.Lock()
	if cur, ok := p.sessions[serverPath]; ok && cur == s {
		delete(p.sessions, serverPath)
	}
	p.mu.Unlock()
}

// Info returns a summary of every pooled session, sorted by server key.
func (p *SessionPool) Info() []SessionInfo {
	p.mu.Lock()
	sessions := make([]*Session, 0, len(p.sessions))
	for _, s := range p.sessions {
		sessions = append(sessions, s)
	}
	p.mu.Unlock()

	infos := make([]SessionInfo, 0, len(sessions))
	for _, s := range sessions {
		infos = append(infos, s.info())
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ServerPath < infos[j].ServerPath })
	return infos
}

// StartHealthCheck launches the background checker. Every interval it pings
// idle sessions and reaps those unused for longer than MaxIdle. Starting an
// already-running checker is a no-op; a non-positive interval selects the
// default.
func (p *SessionPool) StartHealthCheck(interval time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.checkerStop != nil {
		return
	}
	if interval <= 0 {
		interval = DefaultProbeInterval
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	p.checkerStop = stop
	p.checkerDone = done

	go p.healthLoop(interval, stop, done)
	p.logger.Info("mcp.healthcheck.started", "interval", interval.String())
}

// StopHealthCheck stops the background checker and waits for it to exit.
// Safe to call when no checker is running.
func (p *SessionPool) StopHealthCheck() {
	p.mu.Lock()
	stop, done := p.checkerStop, p.checkerDone
	p.checkerStop, p.checkerDone = nil, nil
	p.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
	p.logger.Info("mcp.healthcheck.stopped")
}

func (p *SessionPool) healthLoop(interval time.Duration, stop, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			p.CheckOnce(context.Background())
		}
	}
}

// CheckOnce runs one health-check cycle: sessions idle beyond MaxIdle are
// closed and dropped, every other idle session is pinged. A failed ping
// marks the session unhealthy so its next acquire reconnects; a later
// successful ping returns it to healthy. Sessions busy with a call are
// skipped until the next cycle. Returns the number of sessions reaped.
func (p *SessionPool) CheckOnce(ctx context.Context) int {
	p.mu.Lock()
	sessions := make(map[string]*Session, len(p.sessions))
	for k, s := range p.sessions {
		sessions[k] = s
	}
	maxIdle := p.maxIdle
	p.mu.Unlock()

	reaped := 0
	for path, s := range sessions {
		if p.probeSession(ctx, path, s, maxIdle) {
			reaped++
		}
	}
	return reaped
}

// probeSession handles one session in a check cycle; reports whether it was
// reaped. The session lock is held only for the duration of the probe.
func (p *SessionPool) probeSession(ctx context.Context, path string, s *Session, maxIdle time.Duration) bool {
	if !s.mu.TryLock() {
		// A call is in flight; that is proof of life enough for this cycle.
		return false
	}

	if s.state == StateClosed || s.conn == nil {
		s.mu.Unlock()
		return false
	}

	if idle := time.Since(s.lastUsed); idle > maxIdle {
		conn := s.conn
		s.conn = nil
		s.state = StateClosed
		s.mu.Unlock()

		if err := conn.Close(); err != nil {
			p.logger.Warn("mcp.session.close_failed", "server", path, "error", err.Error())
		}
		p.remove(path, s)
		p.logger.Info("mcp.session.reaped", "server", path, "idle", idle.String())
		return true
	}

	probeCtx, cancel := context.WithTimeout(ctx, p.probeTimeout)
	err := s.conn.Ping(probeCtx)
	cancel()

	s.lastProbe = time.Now()
	if err != nil {
		s.state = StateUnhealthy
		p.logger.Warn("mcp.probe.failed", "server", path, "error", err.Error())
	} else {
		if s.state == StateUnhealthy {
			p.logger.Info("mcp.probe.recovered", "server", path)
		}
		s.state = StateHealthy
	}
	s.mu.Unlock()
	return false
}
