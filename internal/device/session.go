package device

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"maps"
	"net"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/desertthunder/umx/internal/models"
	"github.com/desertthunder/umx/internal/shared"
	"github.com/go-routeros/routeros/v3"
)

const (
	DefaultPort    = 8728
	DefaultTLSPort = 8729
)

// Op is a resource operation; its value is the RouterOS API command suffix.
type Op string

const (
	Read   Op = "print"
	Create Op = "add"
)

// Config holds what is needed to open a [Session].
type Config struct {
	Address     string // host or host:port
	Port        int    // defaults to 8728, or 8729 with TLS
	Username    string
	Password    string
	TLS         bool
	Insecure    bool          // skip certificate verification
	DialTimeout time.Duration // bounds connect and login; zero disables
	CallTimeout time.Duration // bounds each call; zero disables
}

// HostPort returns the dial address with the default port applied.
func (c Config) HostPort() string {
	if _, _, err := net.SplitHostPort(c.Address); err == nil {
		return c.Address
	}
	port := c.Port
	if port == 0 {
		port = DefaultPort
		if c.TLS {
			port = DefaultTLSPort
		}
	}
	return net.JoinHostPort(strings.Trim(c.Address, "[]"), strconv.Itoa(port))
}

// Result is the outcome of a successful call.
type Result struct {
	Entries []models.Entry // items returned by [Read]
	ID      string         // .id of the entry made by [Create], when the device reports it
}

// Caller is the resource-call primitive consumed by the importer and replicator.
type Caller interface {
	Call(ctx context.Context, path string, op Op, params models.Entry) (*Result, error)
	Address() string
}

// client is the subset of [*routeros.Client] a session uses.
type client interface {
	RunArgs(sentence []string) (*routeros.Reply, error)
}

// Session is an authenticated handle to one device.
//
// A session is not meant for concurrent use, but calls are serialized and close is idempotent.
type Session struct {
	mu          sync.Mutex
	address     string
	conn        net.Conn
	client      client
	callTimeout time.Duration
	closed      bool
}

// Open dials the device and logs in.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if strings.TrimSpace(cfg.Address) == "" {
		return nil, &Error{Kind: shared.ErrUnknown, Op: "open", Err: fmt.Errorf("%w: empty address", shared.ErrInvalidConfig)}
	}
	addr := cfg.HostPort()

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}

	conn, err := dial(ctx, addr, cfg)
	if err != nil {
		return nil, &Error{Kind: shared.ErrConnection, Op: "dial", Address: addr, Err: err}
	}

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	c, err := routeros.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, &Error{Kind: shared.ErrUnknown, Op: "open", Address: addr, Err: err}
	}

	if err := c.Login(cfg.Username, cfg.Password); err != nil {
		conn.Close()
		return nil, &Error{Kind: classifyLogin(err), Op: "login", Address: addr, Err: err}
	}

	if !stop() {
		conn.Close()
		return nil, &Error{Kind: shared.ErrConnection, Op: "login", Address: addr, Err: ctx.Err()}
	}
	_ = conn.SetDeadline(time.Time{})

	return newSession(addr, conn, c, cfg.CallTimeout), nil
}

func dial(ctx context.Context, addr string, cfg Config) (net.Conn, error) {
	d := &net.Dialer{KeepAlive: 30 * time.Second}
	if !cfg.TLS {
		return d.DialContext(ctx, "tcp", addr)
	}

	host, _, _ := net.SplitHostPort(addr)
	td := &tls.Dialer{
		NetDialer: d,
		Config: &tls.Config{
			ServerName:         host,
			InsecureSkipVerify: cfg.Insecure,
			MinVersion:         tls.VersionTLS12,
		},
	}
	return td.DialContext(ctx, "tcp", addr)
}

func newSession(addr string, conn net.Conn, c client, callTimeout time.Duration) *Session {
	return &Session{address: addr, conn: conn, client: c, callTimeout: callTimeout}
}

// Address returns the host:port the session is connected to.
func (s *Session) Address() string {
	if s == nil {
		return ""
	}
	return s.address
}

// Closed reports whether the session has been closed or dropped after a transport failure.
func (s *Session) Closed() bool {
	if s == nil {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed || s.client == nil
}

// Call runs one operation against a resource path.
//
// Params become =key=value words in sorted key order. A !trap reply fails with [shared.ErrDevice]
// and leaves the session usable; transport and protocol failures drop the connection.
func (s *Session) Call(ctx context.Context, path string, op Op, params models.Entry) (*Result, error) {
	if s == nil {
		return nil, &Error{Kind: shared.ErrSessionClosed, Op: string(op), Path: path}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || s.client == nil {
		return nil, &Error{Kind: shared.ErrSessionClosed, Op: string(op), Address: s.address, Path: path}
	}
	if err := ctx.Err(); err != nil {
		return nil, &Error{Kind: shared.ErrConnection, Op: string(op), Address: s.address, Path: path, Err: err}
	}

	if s.conn != nil {
		deadline := time.Time{}
		if s.callTimeout > 0 {
			deadline = time.Now().Add(s.callTimeout)
		}
		if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
			deadline = d
		}
		_ = s.conn.SetDeadline(deadline)

		conn := s.conn
		stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
		defer stop()
	}

	reply, err := s.client.RunArgs(Sentence(path, op, params))
	if err != nil {
		kind, broken := classifyCall(err)
		if broken {
			s.drop()
		}
		if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(kind, shared.ErrConnection) {
			err = errors.Join(ctxErr, err)
		}
		return nil, &Error{Kind: kind, Op: string(op), Address: s.address, Path: path, Err: err}
	}

	return newResult(reply), nil
}

// Close releases the connection. It is safe to call more than once and on a nil or failed session.
func (s *Session) Close() error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.client = nil

	if s.conn == nil {
		return nil
	}
	conn := s.conn
	s.conn = nil
	if err := conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return &Error{Kind: shared.ErrConnection, Op: "close", Address: s.address, Err: err}
	}
	return nil
}

// drop closes the connection after a failure that desynchronized the stream; s.mu must be held.
func (s *Session) drop() {
	s.closed = true
	s.client = nil
	if s.conn != nil {
		_ = s.conn.Close()
		s.conn = nil
	}
}

// Sentence builds the API command words for an operation.
func Sentence(path string, op Op, params models.Entry) []string {
	words := make([]string, 0, len(params)+1)
	words = append(words, strings.TrimSuffix(path, "/")+"/"+string(op))
	for _, k := range slices.Sorted(maps.Keys(params)) {
		words = append(words, "="+k+"="+params[k])
	}
	return words
}

func newResult(reply *routeros.Reply) *Result {
	res := &Result{}
	if reply == nil {
		return res
	}

	res.Entries = make([]models.Entry, 0, len(reply.Re))
	for _, sen := range reply.Re {
		if sen == nil {
			continue
		}
		res.Entries = append(res.Entries, models.Entry(maps.Clone(sen.Map)))
	}
	if reply.Done != nil {
		res.ID = reply.Done.Map["ret"]
	}
	return res
}
