package gateway

import (
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/mklatt/scribe/bridge"
	"github.com/mklatt/scribe/utils"
	"github.com/mklatt/scribe/worker"
	"go.uber.org/zap"
)

// StreamPath is the single streaming endpoint.
const StreamPath = "/stream"

// Gateway accepts WebSocket connections and hands each one to a fresh
// session bridge. It holds no per-session state.
type Gateway struct {
	log *zap.Logger

	command worker.Command
	policy  bridge.Policy

	upgrader websocket.Upgrader
}

type Options struct {
	ParentLogger *zap.Logger
	Worker       worker.Command
	Policy       bridge.Policy
}

func NewGateway(options Options) *Gateway {
	return &Gateway{
		log:     options.ParentLogger.Named("gateway"),
		command: options.Worker,
		policy:  options.Policy,
		upgrader: websocket.Upgrader{
			// audio clients connect from anywhere, not browsers on our origin
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Routes registers the gateway's endpoints on mux.
func (g *Gateway) Routes(mux *http.ServeMux) {
	mux.HandleFunc("/", g.handleRoot)
	mux.HandleFunc(StreamPath, g.handleStream)
}

func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	fmt.Fprintf(w, "scribe streaming server. WebSocket endpoint: ws://host:port%s\n", StreamPath)
}

// handleStream accepts the streaming handshake. Non-GET methods get 405 so
// health checks and misconfigured clients fail fast instead of triggering
// handshake errors; a plain GET gets a 400 hint.
func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		http.Error(w,
			fmt.Sprintf("Method not allowed. Connect via WebSocket (GET with Upgrade: websocket) to %s", StreamPath),
			http.StatusMethodNotAllowed)
		return
	}
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w,
			fmt.Sprintf("Use a WebSocket client to connect to ws://host:port%s", StreamPath),
			http.StatusBadRequest)
		return
	}

	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.log.Debug("websocket upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := utils.LogContext(r.Context(),
		zap.String("remote_addr", conn.RemoteAddr().String()))

	b := bridge.New(bridge.Options{
		ParentLogger: g.log,
		Conn:         conn,
		Worker:       g.command,
		Policy:       g.policy,
	})
	if err := b.Run(ctx); err != nil {
		utils.GetLogFromContext(ctx, g.log).Error("session failed", zap.Error(err))
	}
}
