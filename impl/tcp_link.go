package impl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"github.com/encodeous/pbgp/mpc"
	"github.com/encodeous/pbgp/perf"
	"github.com/encodeous/pbgp/state"
	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
)

type tcpLink struct {
	peer  state.PeerIndex
	conn  net.Conn
	mutex sync.Mutex
}

func (l *tcpLink) write(body []byte) error {
	l.mutex.Lock()
	defer l.mutex.Unlock()
	return send(l.conn, body)
}

// TCPTransport carries gate fragments between participants. Every participant dials one outgoing
// connection to each peer, and reads from the connections its peers dialed.
type TCPTransport struct {
	session uuid.UUID
	self    state.PeerIndex
	log     *slog.Logger

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc

	mu       sync.RWMutex
	out      map[state.PeerIndex]*tcpLink
	incoming map[net.Conn]struct{}

	handler func(mpc.Message)
	ready   chan struct{}
	once    sync.Once
	local   chan mpc.Message
	wg      sync.WaitGroup
}

// ListenTCP binds addr and starts accepting peer connections.
func ListenTCP(ctx context.Context, session uuid.UUID, self state.PeerIndex, addr netip.AddrPort, log *slog.Logger) (*TCPTransport, error) {
	config := net.ListenConfig{}
	listener, err := config.Listen(ctx, "tcp", addr.String())
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}
	ctx, cancel := context.WithCancel(ctx)
	t := &TCPTransport{
		session:  session,
		self:     self,
		log:      log,
		listener: listener,
		ctx:      ctx,
		cancel:   cancel,
		out:      make(map[state.PeerIndex]*tcpLink),
		incoming: make(map[net.Conn]struct{}),
		ready:    make(chan struct{}),
		local:    make(chan mpc.Message, MemQueueSize),
	}
	log.Info("listening on", "addr", listener.Addr())
	t.wg.Add(1)
	go t.accept()
	return t, nil
}

// Addr is the bound listen address.
func (t *TCPTransport) Addr() netip.AddrPort {
	return t.listener.Addr().(*net.TCPAddr).AddrPort()
}

func (t *TCPTransport) accept() {
	defer t.wg.Done()
	for t.ctx.Err() == nil {
		conn, err := t.listener.Accept()
		if err != nil {
			if t.ctx.Err() == nil {
				t.log.Warn("failed to accept connection", "err", err)
			}
			continue
		}
		t.mu.Lock()
		if t.ctx.Err() != nil {
			t.mu.Unlock()
			conn.Close()
			return
		}
		t.incoming[conn] = struct{}{}
		t.mu.Unlock()
		t.wg.Add(1)
		go t.serve(conn)
	}
}

func (t *TCPTransport) handshake(conn net.Conn) (state.PeerIndex, error) {
	_ = conn.SetReadDeadline(time.Now().Add(HelloTimeout))
	body, err := receive(conn)
	if err != nil {
		return 0, err
	}
	session, idx, err := decodeHello(body)
	if err != nil {
		return 0, err
	}
	if session != t.session {
		return 0, fmt.Errorf("peer %d belongs to session %s", idx, session)
	}
	_ = conn.SetReadDeadline(time.Time{})
	return idx, nil
}

func (t *TCPTransport) serve(conn net.Conn) {
	defer t.wg.Done()
	defer func() {
		t.mu.Lock()
		delete(t.incoming, conn)
		t.mu.Unlock()
		conn.Close()
	}()

	peer, err := t.handshake(conn)
	if err != nil {
		t.log.Warn("rejected connection", "remote", conn.RemoteAddr(), "err", err)
		return
	}
	t.log.Debug("peer connected", "peer", peer)

	select {
	case <-t.ready:
	case <-t.ctx.Done():
		return
	}
	for {
		body, err := receive(conn)
		if err != nil {
			if t.ctx.Err() == nil && !errors.Is(err, io.EOF) {
				t.log.Warn("peer link failed", "peer", peer, "err", err)
			}
			return
		}
		perf.RecvBytes.Add(float64(len(body) + 4))
		key, value, err := decodeFragment(body)
		if err != nil {
			t.log.Warn("dropping malformed fragment", "peer", peer, "err", err)
			continue
		}
		t.handler(mpc.Message{From: peer, Key: key, Value: value})
	}
}

// Connect dials every peer, retrying with exponential backoff while they come up.
func (t *TCPTransport) Connect(ctx context.Context, peers []state.ParticipantCfg) error {
	for _, p := range peers {
		if p.Index == t.self {
			continue
		}
		conn, err := t.dial(ctx, p.Addr)
		if err != nil {
			return fmt.Errorf("connect to participant %d at %s: %w", p.Index, p.Addr, err)
		}
		link := &tcpLink{peer: p.Index, conn: conn}
		if err := link.write(encodeHello(t.session, t.self)); err != nil {
			conn.Close()
			return fmt.Errorf("hello to participant %d: %w", p.Index, err)
		}
		t.mu.Lock()
		if old, ok := t.out[p.Index]; ok {
			old.conn.Close()
		}
		t.out[p.Index] = link
		t.mu.Unlock()
	}
	return nil
}

func (t *TCPTransport) dial(ctx context.Context, addr netip.AddrPort) (net.Conn, error) {
	var conn net.Conn
	backoff := retry.WithMaxRetries(state.DialRetries, retry.NewExponential(state.DialBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		d := net.Dialer{}
		c, err := d.DialContext(ctx, "tcp", addr.String())
		if err != nil {
			t.log.Debug("dial failed, retrying", "addr", addr, "err", err)
			return retry.RetryableError(err)
		}
		conn = c
		return nil
	})
	return conn, err
}

func (t *TCPTransport) Self() state.PeerIndex {
	return t.self
}

func (t *TCPTransport) Send(to state.PeerIndex, key mpc.GateKey, value int64) error {
	if to == t.self {
		select {
		case t.local <- mpc.Message{From: t.self, Key: key, Value: value}:
			return nil
		case <-t.ctx.Done():
			return ErrEndpointClosed
		}
	}
	t.mu.RLock()
	link, ok := t.out[to]
	t.mu.RUnlock()
	if !ok {
		return fmt.Errorf("not connected to participant %d", to)
	}
	body, err := encodeFragment(key, value)
	if err != nil {
		return err
	}
	if err := link.write(body); err != nil {
		return err
	}
	perf.SentBytes.Add(float64(len(body) + 4))
	return nil
}

// SetHandler installs h and releases fragments held back until now. Only the first handler is used.
func (t *TCPTransport) SetHandler(h func(mpc.Message)) {
	t.once.Do(func() {
		t.handler = h
		close(t.ready)
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			for {
				select {
				case m := <-t.local:
					h(m)
				case <-t.ctx.Done():
					return
				}
			}
		}()
	})
}

func ignoreClosed(err error) error {
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

func (t *TCPTransport) Close() error {
	t.cancel()
	err := ignoreClosed(t.listener.Close())
	t.mu.Lock()
	for _, link := range t.out {
		err = multierr.Append(err, ignoreClosed(link.conn.Close()))
	}
	for conn := range t.incoming {
		err = multierr.Append(err, ignoreClosed(conn.Close()))
	}
	t.mu.Unlock()
	t.wg.Wait()
	return err
}
