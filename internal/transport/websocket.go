package transport

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// WebSocketGateway is a reference external-driver implementation that
// shuttles Gateway datagrams over a single WebSocket connection, sending
// each datagram's bytes as one binary message and attributing every
// inbound message to the connection's one peer address. It demonstrates how a real
// transport driver plugs into the Gateway's Outbound/Deliver endpoints;
// it is not part of the DHT core itself (spec.md §1, §4.4: the overlay
// session belongs to an external collaborator).
//
// Grounded on kernel/core/mesh/transport/transport.go's WebSocketConnection
// (Send/Receive/receiveLoop over *websocket.Conn), generalized from a
// single-peer RPC channel to a datagram pump feeding a Gateway.
type WebSocketGateway struct {
	gw     *Gateway
	conn   *websocket.Conn
	peer   string
	logger *slog.Logger

	writeMu sync.Mutex
	done    chan struct{}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
}

// DialWebSocketGateway connects to url and wires the connection to gw,
// addressing every outbound datagram to peerAddr (the only peer reachable
// through a single WebSocket connection).
func DialWebSocketGateway(gw *Gateway, url, peerAddr string, logger *slog.Logger) (*WebSocketGateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	canonical, err := ValidatePeerAddr(peerAddr)
	if err != nil {
		return nil, fmt.Errorf("dial websocket gateway: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial websocket gateway: %w", err)
	}
	w := &WebSocketGateway{
		gw:     gw,
		conn:   conn,
		peer:   canonical,
		logger: logger.With("component", "websocket_gateway"),
		done:   make(chan struct{}),
	}
	go w.pumpOutbound()
	go w.pumpInbound()
	return w, nil
}

// AcceptWebSocketGateway upgrades an inbound HTTP request to a WebSocket
// and wires it the same way DialWebSocketGateway does. peerAddr is
// validated as a multiaddr before the upgrade proceeds; a request
// carrying a peer address the overlay could never dial is rejected
// outright, never reaching the Gateway.
func AcceptWebSocketGateway(w http.ResponseWriter, r *http.Request, gw *Gateway, peerAddr string, logger *slog.Logger) (*WebSocketGateway, error) {
	if logger == nil {
		logger = slog.Default()
	}
	canonical, err := ValidatePeerAddr(peerAddr)
	if err != nil {
		http.Error(w, "invalid peer address", http.StatusBadRequest)
		return nil, fmt.Errorf("accept websocket gateway: %w", err)
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("accept websocket gateway: %w", err)
	}
	wsg := &WebSocketGateway{
		gw:     gw,
		conn:   conn,
		peer:   canonical,
		logger: logger.With("component", "websocket_gateway"),
		done:   make(chan struct{}),
	}
	go wsg.pumpOutbound()
	go wsg.pumpInbound()
	return wsg, nil
}

func (w *WebSocketGateway) pumpOutbound() {
	for {
		select {
		case d := <-w.gw.Outbound():
			w.writeMu.Lock()
			err := w.conn.WriteMessage(websocket.BinaryMessage, d.Bytes)
			w.writeMu.Unlock()
			if err != nil {
				w.logger.Warn("websocket write failed", "err", err)
				return
			}
		case <-w.done:
			return
		}
	}
}

func (w *WebSocketGateway) pumpInbound() {
	defer w.Close()
	ctx := context.Background()
	for {
		_, message, err := w.conn.ReadMessage()
		if err != nil {
			w.logger.Debug("websocket read ended", "err", err)
			return
		}
		if err := w.gw.Deliver(ctx, Datagram{PeerAddr: w.peer, Bytes: message}); err != nil {
			return
		}
	}
}

// Close tears down the underlying WebSocket connection.
func (w *WebSocketGateway) Close() error {
	select {
	case <-w.done:
		return nil
	default:
		close(w.done)
	}
	return w.conn.Close()
}
