package api

import (
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"classboard/internal/data"
	"classboard/internal/hub"
	"classboard/internal/middleware"
	"classboard/internal/realtime"
)

type createNotificationRequest struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId" validate:"required"`
	Kind      string    `json:"type" validate:"omitempty,oneof=task project message system"`
	Message   string    `json:"message" validate:"required"`
	RelatedID string    `json:"relatedId"`
	Timestamp time.Time `json:"timestamp"`
}

// handleListNotifications returns the caller's notifications, newest
// first. This is the pull-based catch-up for pushes missed offline.
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}

	notifs, err := s.notifs.ForRecipient(r.Context(), claims.UserID)
	if err != nil {
		log.Printf("listing notifications for %s: %v", claims.UserID, err)
		writeError(w, http.StatusInternalServerError, "failed to load notifications")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"notifications": notifs})
}

// handleCreateNotification persists a notification and attempts live
// delivery to the recipient, mirroring the websocket dispatcher.
func (s *Server) handleCreateNotification(w http.ResponseWriter, r *http.Request) {
	var req createNotificationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Kind == "" {
		req.Kind = data.NotifySystem
	}

	saved, err := s.notifs.Save(r.Context(), &data.Notification{
		ID:          req.ID,
		RecipientID: req.UserID,
		Kind:        req.Kind,
		Message:     req.Message,
		RelatedID:   req.RelatedID,
		CreatedAt:   req.Timestamp,
	})
	if err != nil {
		log.Printf("saving notification for %s: %v", req.UserID, err)
		writeError(w, http.StatusInternalServerError, "failed to save notification")
		return
	}

	if err := s.hub.SendToUser(req.UserID, realtime.Event{Type: realtime.TypeNotification, Data: saved}); err != nil {
		if !errors.Is(err, hub.ErrNotConnected) {
			log.Printf("delivery to %s failed: %v", req.UserID, err)
		}
	}

	writeJSON(w, http.StatusCreated, saved)
}

// handleMarkRead flips the read flag of one of the caller's notifications.
func (s *Server) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}

	id := mux.Vars(r)["id"]
	if err := s.notifs.MarkRead(r.Context(), id, claims.UserID); err != nil {
		if errors.Is(err, data.ErrNotificationNotFound) {
			writeError(w, http.StatusNotFound, "notification not found")
			return
		}
		log.Printf("marking notification %s read: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to update notification")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleMarkAllRead marks every unread notification of the caller read.
func (s *Server) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}

	updated, err := s.notifs.MarkAllRead(r.Context(), claims.UserID)
	if err != nil {
		log.Printf("marking all notifications read for %s: %v", claims.UserID, err)
		writeError(w, http.StatusInternalServerError, "failed to update notifications")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"success": true, "updated": updated})
}

// handleDeleteNotification removes one of the caller's notifications.
func (s *Server) handleDeleteNotification(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}

	id := mux.Vars(r)["id"]
	if err := s.notifs.Delete(r.Context(), id, claims.UserID); err != nil {
		if errors.Is(err, data.ErrNotificationNotFound) {
			writeError(w, http.StatusNotFound, "notification not found")
			return
		}
		log.Printf("deleting notification %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "failed to delete notification")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
