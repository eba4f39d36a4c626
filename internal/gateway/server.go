package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"relay/config"
	"relay/internal/bus"
	"relay/internal/chatlist"
	"relay/internal/devices"
	"relay/internal/identity"
	"relay/internal/media"
	"relay/internal/messages"
	"relay/internal/metrics"
	"relay/internal/presence"
	"relay/internal/readstatus"
	"relay/internal/registry"
	"relay/internal/rooms"
	"relay/internal/typing"
)

// Server hosts the websocket process: it authenticates connections, routes
// boundary events into the components, and acts as the event dispatcher that
// splits broadcasts between local connections and the bus.
type Server struct {
	cfg      *config.Config
	verifier identity.Verifier
	dir      identity.Directory

	registry   *registry.Registry
	presence   *presence.Coordinator
	rooms      rooms.Repository
	messages   messages.Repository
	fanout     *messages.FanoutEngine
	typing     *typing.Coordinator
	readstatus *readstatus.Tracker
	chatlist   *chatlist.Projector
	devices    *devices.Storage
	bus        bus.Bus

	metrics  *metrics.Metrics
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewServer(
	cfg *config.Config,
	verifier identity.Verifier,
	dir identity.Directory,
	reg *registry.Registry,
	tracker presence.Tracker,
	roomRepo rooms.Repository,
	msgRepo messages.Repository,
	readStore readstatus.Store,
	deviceStore *devices.Storage,
	resolver media.Resolver,
	b bus.Bus,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Server {
	s := &Server{
		cfg:      cfg,
		verifier: verifier,
		dir:      dir,
		registry: reg,
		rooms:    roomRepo,
		messages: msgRepo,
		devices:  deviceStore,
		bus:      b,
		metrics:  m,
		logger:   logger,
		upgrader: newUpgrader(cfg.AllowedOrigins),
	}

	s.typing = typing.NewCoordinator(typing.DefaultWindow, s.broadcastTyping)
	s.presence = presence.NewCoordinator(reg, tracker, roomRepo, s, logger)
	s.readstatus = readstatus.NewTracker(readStore, msgRepo)
	s.fanout = messages.NewFanoutEngine(msgRepo, roomRepo, resolver, dir, s, logger)
	s.chatlist = chatlist.NewProjector(roomRepo, msgRepo, s.readstatus, s.presence)

	return s
}

// ProcessID identifies this process on the bus.
func ProcessID() string {
	return uuid.NewString()
}

func newUpgrader(allowedOrigins string) websocket.Upgrader {
	allowAll := allowedOrigins == "" || allowedOrigins == "*"
	allowed := make(map[string]bool)
	for _, origin := range strings.Split(allowedOrigins, ",") {
		allowed[strings.TrimSpace(origin)] = true
	}
	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			if allowAll {
				return true
			}
			return allowed[r.Header.Get("Origin")]
		},
	}
}

// Router configures the HTTP surface.
func (s *Server) Router() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/ws", s.HandleWebSocket).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}).Methods("GET")

	c := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(s.cfg.AllowedOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

// HandleWebSocket upgrades, authenticates once, and runs the connection until
// it drops. Authentication failure closes the socket after a single error
// envelope; there is no unauthenticated session.
func (s *Server) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	credential := credentialFrom(r)
	ident, err := s.verifier.Verify(r.Context(), credential)
	if err != nil {
		_ = ws.WriteJSON(errResponse(EventRegisterPresence, err))
		_ = ws.Close()
		return
	}

	c := newConn(ws, ident, credential, s.cfg.FrameRateLimit)
	s.bootstrap(r.Context(), c)

	go c.writeLoop()
	s.readLoop(c)
}

func credentialFrom(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

// bootstrap registers the connection, auto-joins every active membership, and
// fires the presence transition when this became the identity's first local
// connection.
func (s *Server) bootstrap(ctx context.Context, c *conn) {
	memberships, err := s.rooms.ListRoomsFor(ctx, c.identity.ID)
	if err != nil {
		s.logger.Warn("auto-join lookup failed", "identity", c.identity.ID, "error", err)
	}
	for _, room := range memberships {
		c.Join(room.ID)
	}

	wasFirst := s.registry.Register(c.identity.ID, c)
	s.metrics.Connections.Inc()
	if wasFirst {
		s.presence.HandleFirstConnection(ctx, c.identity.ID)
	}

	_ = c.Send(okResponse(EventRegisterPresence, map[string]interface{}{
		"identity_id":  c.identity.ID,
		"display_name": c.identity.DisplayName,
		"joined_rooms": len(memberships),
	}))
}

func (s *Server) readLoop(c *conn) {
	defer s.teardown(c)

	for {
		_, frame, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if !c.limiter.Allow() {
			s.metrics.DroppedSends.Inc()
			continue
		}

		var req Request
		if err := json.Unmarshal(frame, &req); err != nil || req.Event == "" {
			_ = c.Send(Response{Success: false, Event: "error", Message: "Malformed frame"})
			continue
		}

		s.handleEvent(context.Background(), c, req)
	}
}

// teardown is the single owner of connection cleanup: typing entries, the
// registry slot, and the presence transition all go through here exactly once.
func (s *Server) teardown(c *conn) {
	c.close()
	ctx := context.Background()

	wasLast := s.registry.Unregister(c.identity.ID, c)
	s.metrics.Connections.Dec()

	if wasLast {
		// No local connection remains for the identity: its typing timers
		// have no owner left and must not fire against a vanished connection.
		s.typing.ClearIdentity(c.identity.ID)
		s.presence.HandleLastDisconnection(ctx, c.identity.ID)
	}
}

// broadcastTyping is the typing coordinator's notify hook. The set is
// addressed to the room: locally to every joined connection, remotely via the
// bus so other processes can show the same view.
func (s *Server) broadcastTyping(roomID string, typists []typing.Typist) {
	payload, err := json.Marshal(typingPayload{RoomID: roomID, Typists: typists})
	if err != nil {
		return
	}
	s.metrics.TypingBroadcasts.Inc()
	err = s.Dispatch(context.Background(), bus.Event{
		Kind:    bus.KindTyping,
		RoomID:  roomID,
		Payload: payload,
	})
	if err != nil {
		s.logger.Warn("typing broadcast failed", "room", roomID, "error", err)
	}
}

type typingPayload struct {
	RoomID  string          `json:"room_id"`
	Typists []typing.Typist `json:"typing_identities"`
}
