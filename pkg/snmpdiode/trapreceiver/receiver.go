// Package trapreceiver listens for SNMP traps and informs so that devices
// can be rediscovered as soon as they report a change, instead of waiting
// for the next scheduled run.
//
//	UDP :162 → [TrapReceiver] → chan trap.Notification → app.Watch → App.Refresh
//
// gosnmp's TrapListener owns the socket; snmp/trap does the PDU parsing.
package trapreceiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gosnmp/gosnmp"

	"github.com/vpbank/snmp_diode/snmp/trap"
)

// ErrRunning is returned by Start on a receiver that is already listening.
var ErrRunning = errors.New("trapreceiver: already running")

// ─────────────────────────────────────────────────────────────────────────────
// Configuration
// ─────────────────────────────────────────────────────────────────────────────

// Config controls the TrapReceiver.
type Config struct {
	// ListenAddr is the UDP address to bind (default "0.0.0.0:162").
	ListenAddr string

	// OutputBufferSize bounds the refresh requests waiting for the app
	// (default 1000). Notifications arriving while it is full are dropped;
	// the next scheduled run covers those devices.
	OutputBufferSize int

	// Community restricts accepted v1/v2c notifications. Empty accepts any.
	Community string

	// SNMPVersion is the version the listener decodes (default v2c).
	SNMPVersion gosnmp.SnmpVersion

	// CloseTimeout bounds how long Stop waits for the socket (default 3s).
	CloseTimeout time.Duration

	// RefreshOnly drops notifications that do not signal an inventory
	// change (see trap.Notification.Refresh).
	RefreshOnly bool

	// ParseFunc replaces trap.Parse. Used in tests.
	ParseFunc ParseFunc
}

// ParseFunc is the signature of the trap-parsing function.
type ParseFunc func(pkt *gosnmp.SnmpPacket, addr *net.UDPAddr) (trap.Notification, error)

func (c Config) withDefaults() Config {
	if c.ListenAddr == "" {
		c.ListenAddr = "0.0.0.0:162"
	}
	if c.OutputBufferSize <= 0 {
		c.OutputBufferSize = 1000
	}
	if c.SNMPVersion == 0 {
		c.SNMPVersion = gosnmp.Version2c
	}
	if c.CloseTimeout == 0 {
		c.CloseTimeout = 3 * time.Second
	}
	if c.ParseFunc == nil {
		c.ParseFunc = trap.Parse
	}
	return c
}

// Stats counts what the receiver did with each packet.
type Stats struct {
	Delivered uint64 // queued for refresh
	Ignored   uint64 // no inventory change (RefreshOnly)
	Dropped   uint64 // output full
	Malformed uint64 // parse failures
}

// ─────────────────────────────────────────────────────────────────────────────
// TrapReceiver
// ─────────────────────────────────────────────────────────────────────────────

// TrapReceiver turns incoming notifications into refresh requests on its
// output channel. One receiver is started once and stopped once.
type TrapReceiver struct {
	cfg    Config
	logger *slog.Logger
	output chan trap.Notification

	delivered, ignored, dropped, malformed atomic.Uint64

	mu       sync.Mutex
	running  bool
	listener *gosnmp.TrapListener
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New creates a stopped TrapReceiver.
func New(cfg Config, logger *slog.Logger) *TrapReceiver {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(noopWriter{}, nil))
	}
	c := cfg.withDefaults()
	return &TrapReceiver{
		cfg:    c,
		logger: logger,
		output: make(chan trap.Notification, c.OutputBufferSize),
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Output returns the refresh requests. It is closed by Stop.
func (r *TrapReceiver) Output() <-chan trap.Notification { return r.output }

// ListenAddr returns the configured UDP address.
func (r *TrapReceiver) ListenAddr() string { return r.cfg.ListenAddr }

// Stats returns a snapshot of the packet counters.
func (r *TrapReceiver) Stats() Stats {
	return Stats{
		Delivered: r.delivered.Load(),
		Ignored:   r.ignored.Load(),
		Dropped:   r.dropped.Load(),
		Malformed: r.malformed.Load(),
	}
}

// Start binds the socket and returns once it is accepting packets, or with
// the bind error. Cancelling ctx stops the receiver like Stop.
func (r *TrapReceiver) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return ErrRunning
	}
	r.running = true
	r.listener = r.newListener()
	tl := r.listener
	r.mu.Unlock()

	listenErr := make(chan error, 1)
	go func() {
		defer close(r.doneCh)
		listenErr <- tl.Listen(r.cfg.ListenAddr)
	}()

	select {
	case <-tl.Listening():
	case err := <-listenErr:
		r.abort()
		return fmt.Errorf("trapreceiver: listen %s: %w", r.cfg.ListenAddr, err)
	case <-ctx.Done():
		tl.Close()
		r.abort()
		return ctx.Err()
	}
	r.logger.Info("trapreceiver: listening",
		"addr", r.cfg.ListenAddr,
		"refresh_only", r.cfg.RefreshOnly,
	)

	go func() {
		select {
		case <-ctx.Done():
			r.Stop()
		case <-r.stopCh:
		}
	}()
	return nil
}

// Stop closes the socket, waits for the listener goroutine and closes Output.
// Calling it again, or on a receiver that never started, does nothing.
func (r *TrapReceiver) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.running = false

	r.listener.Close()
	close(r.stopCh)
	<-r.doneCh // no handler runs after this, so output can be closed
	close(r.output)

	s := r.Stats()
	r.logger.Info("trapreceiver: stopped",
		"delivered", s.Delivered,
		"ignored", s.Ignored,
		"dropped", s.Dropped,
		"malformed", s.Malformed,
	)
}

func (r *TrapReceiver) newListener() *gosnmp.TrapListener {
	tl := gosnmp.NewTrapListener()
	tl.Params = &gosnmp.GoSNMP{
		Version:   r.cfg.SNMPVersion,
		Community: r.cfg.Community,
		Logger:    gosnmp.NewLogger(slogAdapter{r.logger}),
	}
	tl.CloseTimeout = r.cfg.CloseTimeout
	tl.OnNewTrap = r.handleTrap
	return tl
}

// abort undoes a Start that never reached the listening state.
func (r *TrapReceiver) abort() {
	r.mu.Lock()
	r.running = false
	r.mu.Unlock()
}

// handleTrap runs on the listener goroutine and must not block: a full
// output drops the request instead of stalling the socket.
func (r *TrapReceiver) handleTrap(pkt *gosnmp.SnmpPacket, addr *net.UDPAddr) {
	n, err := r.cfg.ParseFunc(pkt, addr)
	if err != nil {
		r.malformed.Add(1)
		r.logger.Warn("trapreceiver: parse error", "remote", addr, "error", err)
		return
	}
	if r.cfg.RefreshOnly && !n.Refresh() {
		r.ignored.Add(1)
		r.logger.Debug("trapreceiver: ignored", "address", n.Address, "trap_oid", n.TrapOID)
		return
	}

	select {
	case r.output <- n:
		r.delivered.Add(1)
		r.logger.Debug("trapreceiver: refresh queued",
			"address", n.Address,
			"kind", n.Kind,
			"if_index", n.IfIndex,
		)
	default:
		r.dropped.Add(1)
		r.logger.Warn("trapreceiver: refresh queue full, notification dropped",
			"address", n.Address,
			"kind", n.Kind,
		)
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Utilities
// ─────────────────────────────────────────────────────────────────────────────

type noopWriter struct{}

func (noopWriter) Write(b []byte) (int, error) { return len(b), nil }

// slogAdapter routes gosnmp's Printf-style logging to slog at debug level.
type slogAdapter struct{ l *slog.Logger }

func (a slogAdapter) Print(v ...interface{}) { a.l.Debug(fmt.Sprint(v...)) }

func (a slogAdapter) Printf(format string, v ...interface{}) { a.l.Debug(fmt.Sprintf(format, v...)) }
