package bustest

import (
	"context"
	"net"
	"sync"

	"github.com/danmuck/lanesight/internal/protocol/session"
)

// Hub is an in-memory multicast bus. Every frame sent on a CID is delivered
// to every open peer on that CID, the sender included.
type Hub struct {
	mu      sync.Mutex
	peers   map[uint16][]*Peer
	sent    map[uint16][][]byte
	dialErr error
	sendErr error
	buffer  int
}

func NewHub() *Hub {
	return &Hub{
		peers:  make(map[uint16][]*Peer),
		sent:   make(map[uint16][][]byte),
		buffer: 64,
	}
}

// FailDial makes subsequent dials return err.
func (h *Hub) FailDial(err error) {
	h.mu.Lock()
	h.dialErr = err
	h.mu.Unlock()
}

// FailSend makes subsequent sends return err.
func (h *Hub) FailSend(err error) {
	h.mu.Lock()
	h.sendErr = err
	h.mu.Unlock()
}

func (h *Hub) Dialer() session.Dialer {
	return func(ctx context.Context, cid uint16) (session.Transport, error) {
		return h.Dial(ctx, cid)
	}
}

func (h *Hub) Dial(_ context.Context, cid uint16) (*Peer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.dialErr != nil {
		return nil, h.dialErr
	}
	p := &Peer{
		hub:    h,
		cid:    cid,
		inbox:  make(chan []byte, h.buffer),
		closed: make(chan struct{}),
	}
	h.peers[cid] = append(h.peers[cid], p)
	return p, nil
}

// Inject delivers b to every peer on cid without recording it as sent.
func (h *Hub) Inject(cid uint16, b []byte) {
	h.mu.Lock()
	peers := append([]*Peer(nil), h.peers[cid]...)
	h.mu.Unlock()
	for _, p := range peers {
		p.deliver(b)
	}
}

// Sent returns copies of every frame sent on cid.
func (h *Hub) Sent(cid uint16) [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([][]byte, len(h.sent[cid]))
	for i, b := range h.sent[cid] {
		out[i] = append([]byte(nil), b...)
	}
	return out
}

func (h *Hub) Peers(cid uint16) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers[cid])
}

func (h *Hub) remove(p *Peer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	peers := h.peers[p.cid]
	for i, q := range peers {
		if q == p {
			h.peers[p.cid] = append(peers[:i], peers[i+1:]...)
			return
		}
	}
}

type Peer struct {
	hub    *Hub
	cid    uint16
	inbox  chan []byte
	closed chan struct{}
	once   sync.Once
}

func (p *Peer) Send(ctx context.Context, b []byte) error {
	select {
	case <-p.closed:
		return net.ErrClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	h := p.hub
	h.mu.Lock()
	if h.sendErr != nil {
		err := h.sendErr
		h.mu.Unlock()
		return err
	}
	h.sent[p.cid] = append(h.sent[p.cid], append([]byte(nil), b...))
	peers := append([]*Peer(nil), h.peers[p.cid]...)
	h.mu.Unlock()
	for _, q := range peers {
		q.deliver(b)
	}
	return nil
}

func (p *Peer) Receive(ctx context.Context) ([]byte, error) {
	select {
	case b := <-p.inbox:
		return b, nil
	case <-p.closed:
		return nil, net.ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (p *Peer) Close() error {
	p.once.Do(func() {
		close(p.closed)
		p.hub.remove(p)
	})
	return nil
}

// deliver drops the frame when the inbox is full, like a datagram socket.
func (p *Peer) deliver(b []byte) {
	cp := append([]byte(nil), b...)
	select {
	case <-p.closed:
	case p.inbox <- cp:
	default:
	}
}
