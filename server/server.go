// Package server implements the relay. It pairs a host and a joiner that ask
// for the same room id and forwards bytes between them until either side
// hangs up.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/net/netutil"
)

const (
	// DefaultAddress is where the relay listens when nothing else is configured
	DefaultAddress = ":1337"
	// DefaultRequestTimeout bounds the wait for a client's request line
	DefaultRequestTimeout = 30 * time.Second
	// DefaultSweepInterval is how often waiting rooms are checked for hosts
	// that went away
	DefaultSweepInterval = 5 * time.Second
)

var (
	// ErrServerClosed is returned by Serve after Shutdown
	ErrServerClosed = errors.New("server: closed")
	// ErrNotListening is returned by Serve before Listen
	ErrNotListening = errors.New("server: not listening")
)

// Config holds the relay settings.
type Config struct {
	// Address to listen on, host:port
	Address string
	// MaxConns caps simultaneous connections, 0 means no limit
	MaxConns int
	// RequestTimeout bounds the wait for the request line
	RequestTimeout time.Duration
	// SweepInterval is the period of the stale room sweep
	SweepInterval time.Duration
	// Meter records relay metrics, the global meter is used when nil
	Meter metric.Meter
}

// Validate checks the config and fills in defaults.
func (c *Config) Validate() error {
	if c.Address == "" {
		c.Address = DefaultAddress
	}
	if _, _, err := net.SplitHostPort(c.Address); err != nil {
		return fmt.Errorf("invalid listen address %q: %w", c.Address, err)
	}
	if c.MaxConns < 0 {
		return fmt.Errorf("invalid max connections: %d", c.MaxConns)
	}
	if c.RequestTimeout < 0 {
		return fmt.Errorf("invalid request timeout: %s", c.RequestTimeout)
	}
	if c.RequestTimeout == 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.SweepInterval < 0 {
		return fmt.Errorf("invalid sweep interval: %s", c.SweepInterval)
	}
	if c.SweepInterval == 0 {
		c.SweepInterval = DefaultSweepInterval
	}
	return nil
}

// Server is the relay server.
type Server struct {
	cfg      Config
	registry *Registry
	metrics  *relayMetrics

	listener   net.Listener
	inShutdown atomic.Bool
	stop       chan struct{}
	stopOnce   sync.Once

	mu    sync.Mutex
	conns map[net.Conn]struct{}
	wg    sync.WaitGroup
}

// NewServer creates a relay with the given config
func NewServer(cfg Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Meter == nil {
		cfg.Meter = otel.Meter("scorched/relay")
	}

	registry := NewRegistry()
	m, err := newRelayMetrics(cfg.Meter, registry)
	if err != nil {
		return nil, fmt.Errorf("creating relay metrics: %w", err)
	}

	return &Server{
		cfg:      cfg,
		registry: registry,
		metrics:  m,
		stop:     make(chan struct{}),
		conns:    make(map[net.Conn]struct{}),
	}, nil
}

// Listen binds the configured address.
func (s *Server) Listen() error {
	l, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on address %s: %w", s.cfg.Address, err)
	}
	if s.cfg.MaxConns > 0 {
		l = netutil.LimitListener(l, s.cfg.MaxConns)
	}

	s.mu.Lock()
	s.listener = l
	s.mu.Unlock()

	log.Debugf("relay is listening on address: %s", l.Addr())
	return nil
}

// Addr returns the listening address, nil before Listen.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// ListenAndServe binds the address and serves until Shutdown.
func (s *Server) ListenAndServe() error {
	if err := s.Listen(); err != nil {
		return err
	}
	return s.Serve()
}

// Serve accepts connections until Shutdown is called, then returns
// ErrServerClosed.
func (s *Server) Serve() error {
	s.mu.Lock()
	l := s.listener
	s.mu.Unlock()
	if l == nil {
		return ErrNotListening
	}

	if s.spawn(nil) {
		go func() {
			defer s.wg.Done()
			s.sweep()
		}()
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0

	for {
		conn, err := l.Accept()
		if err != nil {
			if s.inShutdown.Load() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			delay := b.NextBackOff()
			log.Errorf("failed to accept connection: %s, retrying in %s", err, delay)
			time.Sleep(delay)
			continue
		}
		b.Reset()

		if !s.spawn(conn) {
			_ = conn.Close()
			continue
		}
		go func() {
			defer s.wg.Done()
			s.accept(conn)
		}()
	}
}

// sweep drops rooms of departed hosts until Shutdown. A departed host holds
// its connection, and a MaxConns slot, until then.
func (s *Server) sweep() {
	t := time.NewTicker(s.cfg.SweepInterval)
	defer t.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			if n := s.registry.Sweep(); n > 0 {
				log.Debugf("dropped %d rooms of departed hosts", n)
			}
		}
	}
}

// Rooms returns the number of hosts waiting for a partner.
func (s *Server) Rooms() int {
	return s.registry.Len()
}

// Shutdown stops accepting connections, drops the waiting rooms and closes
// every relayed session. It waits for the session goroutines until ctx is
// done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)
	s.stopOnce.Do(func() { close(s.stop) })

	s.mu.Lock()
	var lErr error
	if s.listener != nil {
		lErr = s.listener.Close()
	}
	s.mu.Unlock()

	log.Infof("closing waiting rooms and relayed sessions")
	s.registry.Close()

	s.mu.Lock()
	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	if errors.Is(lErr, net.ErrClosed) {
		return nil
	}
	return lErr
}

// spawn accounts for a new goroutine serving c, or for a background goroutine
// when c is nil. It fails once Shutdown has started, so every wg.Add happens
// before Shutdown waits.
func (s *Server) spawn(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inShutdown.Load() {
		return false
	}
	s.wg.Add(1)
	if c != nil {
		s.conns[c] = struct{}{}
	}
	return true
}

// track makes c visible to Shutdown.
func (s *Server) track(c net.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inShutdown.Load() {
		return false
	}
	s.conns[c] = struct{}{}
	return true
}

func (s *Server) untrack(c net.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.conns, c)
}
