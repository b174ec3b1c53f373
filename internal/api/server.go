// Package api exposes the REST surface: auth, the durable message and
// notification catch-up paths, and the contacts listing.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"classboard/internal/auth"
	"classboard/internal/data"
	"classboard/internal/hub"
	"classboard/internal/middleware"
)

// UsersStore is the subset of the users store the API needs.
type UsersStore interface {
	Create(ctx context.Context, name, email, hashedPassword, role, studentID string) (*data.User, error)
	GetByEmail(ctx context.Context, email string) (*data.User, error)
	Exists(ctx context.Context, id string) (bool, error)
	List(ctx context.Context) ([]*data.User, error)
}

// MessagesStore is the subset of the messages store the API needs.
type MessagesStore interface {
	Save(ctx context.Context, msg *data.Message) (*data.Message, error)
	Conversation(ctx context.Context, user1, user2 string, limit int64) ([]*data.Message, error)
	Contacts(ctx context.Context, userID string, limit int64) ([]*data.PartnerSummary, error)
}

// NotificationsStore is the subset of the notifications store the API needs.
type NotificationsStore interface {
	Save(ctx context.Context, n *data.Notification) (*data.Notification, error)
	ForRecipient(ctx context.Context, recipientID string) ([]*data.Notification, error)
	MarkRead(ctx context.Context, id, recipientID string) error
	MarkAllRead(ctx context.Context, recipientID string) (int64, error)
	Delete(ctx context.Context, id, recipientID string) error
}

// Server holds the REST handlers and their dependencies.
type Server struct {
	users    UsersStore
	msgs     MessagesStore
	notifs   NotificationsStore
	auth     *auth.JWTManager
	hub      *hub.Hub
	limiter  *middleware.LimiterStore
	validate *validator.Validate
	origins  []string
}

// NewServer returns a ready-to-route Server.
func NewServer(users UsersStore, msgs MessagesStore, notifs NotificationsStore, authMgr *auth.JWTManager, h *hub.Hub, limiter *middleware.LimiterStore, origins []string) *Server {
	return &Server{
		users:    users,
		msgs:     msgs,
		notifs:   notifs,
		auth:     authMgr,
		hub:      h,
		limiter:  limiter,
		validate: validator.New(),
		origins:  origins,
	}
}

// Router assembles the full HTTP handler: websocket endpoint, public
// auth endpoints (rate limited per caller), and the authenticated API,
// all behind CORS.
func (s *Server) Router(ws http.Handler) http.Handler {
	r := mux.NewRouter()

	// Live connection; authenticates via its own upgrade token.
	r.Handle("/chat", ws).Methods(http.MethodGet)

	// Public, rate limited.
	r.Handle("/auth/register",
		middleware.RateLimit(s.limiter, nil, http.HandlerFunc(s.handleRegister))).Methods(http.MethodPost)
	r.Handle("/auth/login",
		middleware.RateLimit(s.limiter, nil, http.HandlerFunc(s.handleLogin))).Methods(http.MethodPost)

	// Everything else requires a Bearer token.
	api := r.PathPrefix("/").Subrouter()
	api.Use(func(next http.Handler) http.Handler {
		return middleware.Authenticate(s.auth, next)
	})
	api.HandleFunc("/users", s.handleListUsers).Methods(http.MethodGet)
	api.HandleFunc("/contacts", s.handleContacts).Methods(http.MethodGet)
	api.HandleFunc("/messages", s.handleListMessages).Methods(http.MethodGet)
	api.HandleFunc("/messages", s.handleCreateMessage).Methods(http.MethodPost)
	api.HandleFunc("/notifications", s.handleListNotifications).Methods(http.MethodGet)
	api.HandleFunc("/notifications", s.handleCreateNotification).Methods(http.MethodPost)
	api.HandleFunc("/notifications/read-all", s.handleMarkAllRead).Methods(http.MethodPatch)
	api.HandleFunc("/notifications/{id}/read", s.handleMarkRead).Methods(http.MethodPatch)
	api.HandleFunc("/notifications/{id}", s.handleDeleteNotification).Methods(http.MethodDelete)

	c := cors.New(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
