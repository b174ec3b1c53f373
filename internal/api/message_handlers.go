package api

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"classboard/internal/data"
	"classboard/internal/hub"
	"classboard/internal/middleware"
	"classboard/internal/realtime"
)

const defaultHistoryLimit = 100

type createMessageRequest struct {
	ID         string    `json:"id"`
	ReceiverID string    `json:"receiverId" validate:"required"`
	Content    string    `json:"content" validate:"required"`
	Timestamp  time.Time `json:"timestamp"`
}

// handleListMessages returns the conversation between the caller and the
// user named by the "with" query parameter, oldest first. This is the
// catch-up path for messages missed while offline.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}

	with := r.URL.Query().Get("with")
	if with == "" {
		writeError(w, http.StatusBadRequest, "missing 'with' query parameter")
		return
	}

	limit := int64(defaultHistoryLimit)
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			limit = n
		}
	}

	messages, err := s.msgs.Conversation(r.Context(), claims.UserID, with, limit)
	if err != nil {
		log.Printf("listing conversation: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load messages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

// handleCreateMessage is the durable write path for chat. It persists
// through the same idempotent save as the websocket dispatcher and makes
// the same best-effort live delivery, so a message sent over REST still
// reaches an online receiver immediately.
func (s *Server) handleCreateMessage(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}

	var req createMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	exists, err := s.users.Exists(r.Context(), req.ReceiverID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to verify recipient")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "recipient not found")
		return
	}

	saved, err := s.msgs.Save(r.Context(), &data.Message{
		ID:         req.ID,
		SenderID:   claims.UserID,
		ReceiverID: req.ReceiverID,
		Content:    req.Content,
		SentAt:     req.Timestamp,
	})
	if err != nil {
		log.Printf("saving message from %s: %v", claims.UserID, err)
		writeError(w, http.StatusInternalServerError, "failed to save message")
		return
	}

	if err := s.hub.SendToUser(req.ReceiverID, realtime.Event{Type: realtime.TypeChat, Data: saved}); err != nil {
		if !errors.Is(err, hub.ErrNotConnected) {
			log.Printf("delivery to %s failed: %v", req.ReceiverID, err)
		}
	}

	writeJSON(w, http.StatusCreated, saved)
}
