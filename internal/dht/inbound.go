package dht

import (
	"context"
	"fmt"

	"github.com/meshmail/dhtnode/internal/dispatch"
	"github.com/meshmail/dhtnode/internal/transport"
	"github.com/meshmail/dhtnode/internal/wire"
)

// HandleInbound parses one datagram's bytes as an envelope and routes
// it: the Batch Dispatcher gets first look by CID; if unmatched, the
// Packet Handler registry answers it by type and the reply is sent back
// through the gateway (spec.md §2 data flow, §4.6).
func (e *Engine) HandleInbound(ctx context.Context, raw []byte, fromAddr string) error {
	env, err := wire.DecodeEnvelope(raw)
	if err != nil {
		e.logger.Debug("dropping malformed envelope", "from", fromAddr, "err", err)
		return nil
	}

	if e.dispatch.Dispatch(dispatch.Response{CID: env.CID, FromAddr: fromAddr, Envelope: env}) {
		return nil
	}

	respPayload, ok := e.handlers.Handle(env, fromAddr)
	if !ok {
		e.logger.Debug("no handler for packet type", "type", string(env.Type), "from", fromAddr)
		return nil
	}

	respEnv := e.buildEnvelope(wire.TypeResponse, env.Version, env.CID, respPayload.Encode())
	if err := e.gateway.Send(ctx, transport.Datagram{PeerAddr: fromAddr, Bytes: respEnv.Encode()}); err != nil {
		return fmt.Errorf("dht: send response to %s: %w", fromAddr, err)
	}
	return nil
}

// Run drains the gateway's receive queue, handing every datagram to
// HandleInbound, until ctx is done.
func (e *Engine) Run(ctx context.Context) {
	for {
		d, err := e.gateway.Receive(ctx)
		if err != nil {
			return
		}
		if err := e.HandleInbound(ctx, d.Bytes, d.PeerAddr); err != nil {
			e.logger.Warn("inbound handling failed", "err", err)
		}
	}
}
