package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/gorilla/websocket"

	"classboard/internal/auth"
	"classboard/internal/data"
	"classboard/internal/hub"
	"classboard/internal/middleware"
)

// MessageStore is the subset of the messages store the dispatcher needs.
type MessageStore interface {
	Save(ctx context.Context, msg *data.Message) (*data.Message, error)
}

// NotificationStore is the subset of the notifications store the
// dispatcher needs.
type NotificationStore interface {
	Save(ctx context.Context, n *data.Notification) (*data.Notification, error)
}

// UserDirectory lists users for the init snapshot.
type UserDirectory interface {
	List(ctx context.Context) ([]*data.User, error)
}

// Handler upgrades websocket connections and dispatches their frames.
type Handler struct {
	hub      *hub.Hub
	msgs     MessageStore
	notifs   NotificationStore
	users    UserDirectory
	auth     *auth.JWTManager
	upgrader websocket.Upgrader
}

// NewHandler wires the websocket endpoint.
func NewHandler(h *hub.Hub, msgs MessageStore, notifs NotificationStore, users UserDirectory, authMgr *auth.JWTManager, allowedOrigins []string) *Handler {
	return &Handler{
		hub:      h,
		msgs:     msgs,
		notifs:   notifs,
		users:    users,
		auth:     authMgr,
		upgrader: newUpgrader(allowedOrigins),
	}
}

// newUpgrader builds a websocket upgrader restricted to the given
// origins. A single "*" entry allows any origin.
func newUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowAll := false
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if origin == "*" {
			allowAll = true
		}
		allowed[origin] = true
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

// ServeHTTP handles GET /chat.
//
// The upgrade requires a valid token (token query parameter or
// Authorization header); the connection is registered under the token's
// user id. An init frame's userId field is never trusted for identity.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token = middleware.BearerToken(r.Header.Get("Authorization"))
	}
	claims, err := h.auth.VerifyToken(token)
	if err != nil {
		http.Error(w, `{"error":"unauthenticated"}`, http.StatusUnauthorized)
		return
	}
	userID := claims.UserID

	sock, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("websocket upgrade error: %v", err)
		return
	}

	c := newWSConn(sock)
	if err := c.Send(Event{Type: TypeConnection, Status: StatusConnected}); err != nil {
		_ = c.Close()
		return
	}

	// Last connection wins. The displaced handle is closed here; its own
	// read loop observes the close and exits, and its handle-aware
	// unregister is a no-op because this connection replaced it.
	if prev := h.hub.Register(userID, c); prev != nil {
		_ = prev.Close()
	}
	h.broadcastPresence(userID, StatusOnline)
	log.Printf("user %s connected", userID)

	h.readLoop(r.Context(), c, userID)

	if h.hub.Unregister(userID, c) {
		h.broadcastPresence(userID, StatusOffline)
	}
	_ = c.Close()
	log.Printf("user %s disconnected", userID)
}

// readLoop processes frames in arrival order until the connection closes.
func (h *Handler) readLoop(ctx context.Context, c *wsConn, userID string) {
	for {
		var frame Frame
		if err := c.sock.ReadJSON(&frame); err != nil {
			// Malformed JSON is a per-frame error, not a connection
			// failure; only transport-level errors end the loop.
			if isDecodeError(err) {
				h.sendError(c, "Error processing message")
				continue
			}
			return
		}

		h.dispatch(ctx, c, userID, frame)
	}
}

// isDecodeError distinguishes JSON decode failures (recoverable, the
// connection stays open) from transport failures.
func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

// broadcastPresence notifies every other connected user that userID went
// on- or offline.
func (h *Handler) broadcastPresence(userID, status string) {
	evt := Event{Type: TypePresence, UserID: userID, Status: status}
	h.hub.Each(func(id string, c hub.Conn) {
		if id == userID {
			return
		}
		if err := c.Send(evt); err != nil {
			h.hub.Unregister(id, c)
		}
	})
}

func (h *Handler) sendError(c hub.Conn, message string) {
	if err := c.Send(Event{Type: TypeError, Message: message}); err != nil {
		log.Printf("failed to send error frame: %v", err)
	}
}
