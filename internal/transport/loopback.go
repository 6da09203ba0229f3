package transport

import "context"

// Loopback wires two Gateways together in-process so each one's outbound
// queue feeds the other's inbound queue, with no real socket involved.
// It exists purely for exercising the DHT Engine end-to-end in tests
// without a real overlay session.
type Loopback struct {
	A, B *Gateway
	stop chan struct{}
}

// NewLoopback builds a connected pair of gateways and starts the pump
// goroutines that shuttle datagrams between them.
func NewLoopback(queueCapacity int) *Loopback {
	l := &Loopback{
		A:    New(queueCapacity, queueCapacity),
		B:    New(queueCapacity, queueCapacity),
		stop: make(chan struct{}),
	}
	go l.pump(l.A, l.B)
	go l.pump(l.B, l.A)
	return l
}

func (l *Loopback) pump(from, to *Gateway) {
	ctx := context.Background()
	for {
		select {
		case d := <-from.Outbound():
			_ = to.Deliver(ctx, d)
		case <-l.stop:
			return
		}
	}
}

// Close stops the pump goroutines.
func (l *Loopback) Close() {
	close(l.stop)
}
