// Package transport implements the Transport Gateway: the thin adapter
// between the DHT core and the overlay datagram transport, exposed as two
// bounded FIFO queues (spec.md §4.4). The core never touches a socket —
// it enqueues Datagrams to send and dequeues Datagrams it received; an
// external collaborator owns the other end of both queues and actually
// talks to the overlay.
package transport

import (
	"context"
	"errors"
	"fmt"

	ma "github.com/multiformats/go-multiaddr"
)

// Datagram is one (peer-address, bytes) record crossing the gateway.
type Datagram struct {
	PeerAddr string
	Bytes    []byte
}

// ErrQueueFull is returned by TrySend when the send queue has no room
// and the caller asked not to block (spec.md §4.4 "try-again" error).
var ErrQueueFull = errors.New("transport: send queue full")

// Gateway is a bounded pair of FIFO queues. The DHT core calls Send and
// Receive; an external driver calls Outbound and Deliver on the other
// side of the same channels.
type Gateway struct {
	send chan Datagram
	recv chan Datagram
}

// New builds a Gateway with the given per-queue capacity.
func New(sendCapacity, recvCapacity int) *Gateway {
	return &Gateway{
		send: make(chan Datagram, sendCapacity),
		recv: make(chan Datagram, recvCapacity),
	}
}

// Send enqueues a datagram for transmission, blocking under backpressure
// until there is room or ctx is done (spec.md §4.4).
func (g *Gateway) Send(ctx context.Context, d Datagram) error {
	select {
	case g.send <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TrySend enqueues without blocking, returning ErrQueueFull if the send
// queue has no room (the "try-again" alternative spec.md §4.4 allows).
func (g *Gateway) TrySend(d Datagram) error {
	select {
	case g.send <- d:
		return nil
	default:
		return ErrQueueFull
	}
}

// Receive dequeues the next inbound datagram, blocking until one arrives
// or ctx is done.
func (g *Gateway) Receive(ctx context.Context) (Datagram, error) {
	select {
	case d := <-g.recv:
		return d, nil
	case <-ctx.Done():
		return Datagram{}, ctx.Err()
	}
}

// Outbound exposes the send queue's consuming end for the external
// transport driver: it dequeues what the core enqueued via Send.
func (g *Gateway) Outbound() <-chan Datagram {
	return g.send
}

// Deliver is how the external transport driver hands an inbound datagram
// to the core, blocking under backpressure like Send.
func (g *Gateway) Deliver(ctx context.Context, d Datagram) error {
	select {
	case g.recv <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ValidatePeerAddr canonicalizes and validates a peer-address string as a
// multiaddr, rejecting addresses the external transport could never dial.
// Grounded on internal/network/mesh.go's use of
// github.com/multiformats/go-multiaddr when dialing libp2p hosts: this
// package never dials anything itself, but reuses the same address
// grammar so the core can reject garbage before it reaches the queue.
func ValidatePeerAddr(addr string) (string, error) {
	m, err := ma.NewMultiaddr(addr)
	if err != nil {
		return "", fmt.Errorf("invalid peer address %q: %w", addr, err)
	}
	return m.String(), nil
}
