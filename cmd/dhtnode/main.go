// Command dhtnode wires the DHT subsystem's components into a runnable
// node: load config and identity, build the routing table, local store
// and packet handler, then run the inbound loop and maintenance task
// until interrupted. Connecting the Transport Gateway to a real overlay
// session is the one thing this binary does not do (spec.md §1) — it
// wires a WebSocketGateway as the reference adapter instead.
package main

import (
	"context"
	"encoding/base64"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/meshmail/dhtnode/internal/config"
	"github.com/meshmail/dhtnode/internal/dht"
	"github.com/meshmail/dhtnode/internal/handler"
	"github.com/meshmail/dhtnode/internal/identity"
	"github.com/meshmail/dhtnode/internal/routing"
	"github.com/meshmail/dhtnode/internal/store"
	"github.com/meshmail/dhtnode/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "path to a JSON config file (defaults are used if absent)")
	listenAddr := flag.String("listen", ":4242", "address the WebSocket transport adapter listens on")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("config load failed", "err", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		logger.Error("data directory setup failed", "err", err)
		os.Exit(1)
	}

	id, err := identity.Load(filepath.Join(cfg.DataDir, cfg.IdentityFile))
	if err != nil {
		logger.Error("identity load failed", "err", err)
		os.Exit(1)
	}
	logger.Info("node identity ready", "peer_id", id.PeerID)

	rt := routing.New(id.PeerID, logger)
	bootstrap := make([][]byte, 0, len(cfg.BootstrapPeers))
	for _, b64 := range cfg.BootstrapPeers {
		decoded, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			logger.Warn("skipping malformed bootstrap peer", "err", err)
			continue
		}
		bootstrap = append(bootstrap, decoded)
	}
	nodesPath := filepath.Join(cfg.DataDir, cfg.NodesFile)
	loaded, fromFile := rt.Bootstrap(nodesPath, bootstrap)
	logger.Info("routing table bootstrapped", "peers", loaded, "from_nodes_file", fromFile)

	st, err := store.New(cfg.DataDir, cfg.TTLByKind(), logger)
	if err != nil {
		logger.Error("store init failed", "err", err)
		os.Exit(1)
	}

	policy, err := handler.NewRateLimitPolicy(20, 40)
	if err != nil {
		logger.Warn("rate limit policy unavailable, admitting all store requests", "err", err)
		policy = nil
	}
	var admission handler.AdmissionPolicy = handler.AllowAll{}
	if policy != nil {
		admission = policy
	}
	reg := handler.New(st, rt, admission, logger)

	gw := transport.New(256, 256)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		peerAddr := r.URL.Query().Get("peer")
		if _, err := transport.AcceptWebSocketGateway(w, r, gw, peerAddr, logger); err != nil {
			logger.Warn("websocket accept failed", "err", err)
		}
	})
	server := &http.Server{Addr: *listenAddr, Handler: mux}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("websocket listener failed", "err", err)
		}
	}()

	self := id.Peer()
	engine := dht.New(self, rt, st, gw, reg, nil, cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go engine.Run(ctx)
	go engine.RunMaintenance(ctx, nodesPath)

	<-ctx.Done()
	logger.Info("shutting down")
	_ = server.Close()
	_ = rt.SaveToFile(nodesPath)
}
