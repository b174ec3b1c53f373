package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"log"

	"classboard/internal/data"
	"classboard/internal/hub"
)

// dispatch routes one inbound frame. Every failure is scoped to this
// frame: the sender gets an error event and the connection stays open.
func (h *Handler) dispatch(ctx context.Context, c hub.Conn, userID string, frame Frame) {
	switch frame.Type {
	case TypeInit:
		h.handleInit(ctx, c)
	case TypeChat:
		h.handleChat(ctx, c, userID, frame.Data)
	case TypeNotification:
		h.handleNotification(ctx, c, frame.Data)
	case TypeTyping, TypeStopTyping:
		h.relayTyping(c, userID, frame.Type, frame.Data)
	default:
		// Unknown types are not an error, by contract.
		log.Printf("unknown frame type: %q", frame.Type)
	}
}

// handleInit answers with the bulk users snapshot. Identity was already
// established at upgrade time, so the frame carries nothing we trust.
func (h *Handler) handleInit(ctx context.Context, c hub.Conn) {
	users, err := h.users.List(ctx)
	if err != nil {
		log.Printf("init: listing users: %v", err)
		h.sendError(c, "Failed to load users")
		return
	}
	if err := c.Send(Event{Type: TypeUsers, Data: users}); err != nil {
		log.Printf("init: sending users snapshot: %v", err)
	}
}

// handleChat validates, persists and delivers a chat message to the
// receiver's live connection, if registered. The sender receives no
// echo; its own view is updated client-side.
func (h *Handler) handleChat(ctx context.Context, c hub.Conn, senderID string, raw json.RawMessage) {
	var p ChatPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.sendError(c, "Invalid chat payload")
		return
	}
	if p.SenderID != "" && p.SenderID != senderID {
		// The registry key comes from the verified token; a frame
		// claiming another sender is rejected outright.
		h.sendError(c, "Sender does not match authenticated user")
		return
	}
	if p.ReceiverID == "" || p.Content == "" {
		h.sendError(c, "receiverId and content are required")
		return
	}

	saved, err := h.msgs.Save(ctx, &data.Message{
		ID:         p.ID,
		SenderID:   senderID,
		ReceiverID: p.ReceiverID,
		Content:    p.Content,
		SentAt:     p.Timestamp,
	})
	if err != nil {
		log.Printf("chat: saving message from %s: %v", senderID, err)
		h.sendError(c, "Failed to save message")
		return
	}

	// Targeted delivery of the canonical stored record. An offline
	// receiver catches up over REST; the persisted record is the
	// durable fallback.
	if err := h.hub.SendToUser(p.ReceiverID, Event{Type: TypeChat, Data: saved}); err != nil {
		if !errors.Is(err, hub.ErrNotConnected) {
			log.Printf("chat: delivery to %s failed: %v", p.ReceiverID, err)
		}
	}
}

// handleNotification persists a notification and delivers it to the
// recipient's live connection, if registered. No retry for offline
// recipients; they fetch missed notifications on next load.
func (h *Handler) handleNotification(ctx context.Context, c hub.Conn, raw json.RawMessage) {
	var p NotificationPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		h.sendError(c, "Invalid notification payload")
		return
	}
	if p.UserID == "" || p.Message == "" {
		h.sendError(c, "userId and message are required")
		return
	}
	if p.Kind != "" && !data.ValidKind(p.Kind) {
		h.sendError(c, "unknown notification type")
		return
	}
	if p.Kind == "" {
		p.Kind = data.NotifySystem
	}

	saved, err := h.notifs.Save(ctx, &data.Notification{
		ID:          p.ID,
		RecipientID: p.UserID,
		Kind:        p.Kind,
		Message:     p.Message,
		RelatedID:   p.RelatedID,
		CreatedAt:   p.Timestamp,
	})
	if err != nil {
		log.Printf("notification: saving for %s: %v", p.UserID, err)
		h.sendError(c, "Failed to save notification")
		return
	}

	if err := h.hub.SendToUser(p.UserID, Event{Type: TypeNotification, Data: saved}); err != nil {
		if !errors.Is(err, hub.ErrNotConnected) {
			log.Printf("notification: delivery to %s failed: %v", p.UserID, err)
		}
	}
}

// relayTyping forwards typing indicators to the recipient when online.
// Indicators are ephemeral and never persisted.
func (h *Handler) relayTyping(c hub.Conn, senderID, frameType string, raw json.RawMessage) {
	var p TypingPayload
	if err := json.Unmarshal(raw, &p); err != nil || p.ReceiverID == "" {
		h.sendError(c, "Invalid typing payload")
		return
	}
	_ = h.hub.SendToUser(p.ReceiverID, Event{Type: frameType, SenderID: senderID})
}
