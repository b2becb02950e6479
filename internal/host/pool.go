// Package host establishes SSH connections to instances, trying each
// connection string in the instance's fallback chain until one answers,
// and caches one live connection per instance for the rest of the
// invocation.
package host

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirex/upkeep/internal/errors"
	"github.com/sirex/upkeep/internal/instance"
	"github.com/sirex/upkeep/pkg/sshutil"
)

// ConnectionEvent represents an event during connection attempts.
type ConnectionEvent struct {
	Type     ConnectionEventType
	Instance string
	Target   string // the SSH connection string being tried
	Error    error
	Latency  time.Duration
}

// ConnectionEventType categorizes connection events.
type ConnectionEventType int

const (
	// EventTrying indicates a connection attempt is starting.
	EventTrying ConnectionEventType = iota
	// EventFailed indicates a connection attempt failed.
	EventFailed
	// EventConnected indicates a successful connection.
	EventConnected
	// EventCacheHit indicates a cached connection was reused.
	EventCacheHit
)

// String returns a human-readable description of the event type.
func (t ConnectionEventType) String() string {
	switch t {
	case EventTrying:
		return "trying"
	case EventFailed:
		return "failed"
	case EventConnected:
		return "connected"
	case EventCacheHit:
		return "cache_hit"
	default:
		return "unknown"
	}
}

// EventHandler is a callback for connection events.
type EventHandler func(event ConnectionEvent)

// DefaultDialTimeout is the default timeout for SSH connection attempts.
const DefaultDialTimeout = 5 * time.Second

// DialFunc establishes an SSH connection to a target. Tests swap this
// for a mock.
type DialFunc func(target string, timeout time.Duration) (sshutil.SSHClient, error)

func defaultDial(target string, timeout time.Duration) (sshutil.SSHClient, error) {
	return sshutil.Dial(target, timeout)
}

// Connection is an established SSH connection to an instance.
type Connection struct {
	Instance *instance.Instance
	Target   string            // the SSH connection string that worked
	Client   sshutil.SSHClient // the active SSH client
	Latency  time.Duration     // time the successful handshake took
}

// Close closes the SSH connection.
func (c *Connection) Close() error {
	if c.Client != nil {
		return c.Client.Close()
	}
	return nil
}

// Pool caches one live connection per instance within an invocation.
type Pool struct {
	mu           sync.Mutex
	timeout      time.Duration
	dial         DialFunc
	eventHandler EventHandler
	cached       map[string]*Connection // instance name -> connection
}

// NewPool creates an empty connection pool.
func NewPool() *Pool {
	return &Pool{
		timeout: DefaultDialTimeout,
		dial:    defaultDial,
		cached:  make(map[string]*Connection),
	}
}

// SetTimeout sets the dial timeout for connection attempts.
func (p *Pool) SetTimeout(timeout time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.timeout = timeout
}

// SetDial replaces the dial function. Used by tests.
func (p *Pool) SetDial(dial DialFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dial = dial
}

// SetEventHandler sets a callback for connection events.
func (p *Pool) SetEventHandler(handler EventHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.eventHandler = handler
}

func (p *Pool) emit(event ConnectionEvent) {
	if p.eventHandler != nil {
		p.eventHandler(event)
	}
}

// Get returns a live connection to the instance, reusing the cached one
// when it still answers a keepalive.
func (p *Pool) Get(inst *instance.Instance) (*Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if conn, ok := p.cached[inst.Name]; ok {
		if isAlive(conn) {
			p.emit(ConnectionEvent{Type: EventCacheHit, Instance: inst.Name, Target: conn.Target})
			return conn, nil
		}
		// Stale connection, drop it and reconnect
		conn.Close()
		delete(p.cached, inst.Name)
	}

	conn, err := p.connect(inst)
	if err != nil {
		return nil, err
	}
	p.cached[inst.Name] = conn
	return conn, nil
}

// Close closes all cached connections. The first error wins.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for name, conn := range p.cached {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(p.cached, name)
	}
	return firstErr
}

// connect tries each SSH connection string of the instance in order.
func (p *Pool) connect(inst *instance.Instance) (*Connection, error) {
	if len(inst.SSH) == 0 {
		return nil, errors.New(errors.ErrConfig,
			fmt.Sprintf("Instance '%s' has no SSH connections configured", inst.Name),
			"Add at least one under 'ssh:' in .upkeep.yaml.")
	}

	var failed []string
	for _, target := range inst.SSH {
		p.emit(ConnectionEvent{Type: EventTrying, Instance: inst.Name, Target: target})

		start := time.Now()
		client, err := p.dial(target, p.timeout)
		if err != nil {
			p.emit(ConnectionEvent{Type: EventFailed, Instance: inst.Name, Target: target, Error: err})
			failed = append(failed, target)
			continue
		}

		latency := time.Since(start)
		p.emit(ConnectionEvent{Type: EventConnected, Instance: inst.Name, Target: target, Latency: latency})
		return &Connection{
			Instance: inst,
			Target:   target,
			Client:   client,
			Latency:  latency,
		}, nil
	}

	return nil, errors.New(errors.ErrSSH,
		fmt.Sprintf("Can't reach instance '%s' (tried %s)", inst.Name, strings.Join(failed, ", ")),
		"Check the machine is up and 'ssh <target>' works from your terminal.")
}

// requester is the optional keepalive surface of an SSH client.
type requester interface {
	SendRequest(name string, wantReply bool, payload []byte) (bool, []byte, error)
}

// isAlive checks whether a cached connection is still usable. A keepalive
// global request is much cheaper than opening a session.
func isAlive(conn *Connection) bool {
	if conn == nil || conn.Client == nil {
		return false
	}

	if r, ok := conn.Client.(requester); ok {
		_, _, err := r.SendRequest("keepalive@openssh.com", true, nil)
		return err == nil
	}

	sess, err := conn.Client.NewSession()
	if err != nil {
		return false
	}
	sess.Close()
	return true
}
