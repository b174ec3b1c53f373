package api

import (
	"log"
	"net/http"

	"github.com/samber/lo"

	"classboard/internal/data"
	"classboard/internal/middleware"
)

const contactsLimit = 200

// handleListUsers returns the user directory. Password hashes are
// excluded by the model's JSON tags.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := s.users.List(r.Context())
	if err != nil {
		log.Printf("listing users: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load users")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"users": users})
}

// handleContacts joins the user directory with the caller's last message
// per partner and the live-connection presence of each user.
func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing auth claims")
		return
	}

	users, err := s.users.List(r.Context())
	if err != nil {
		log.Printf("listing users: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to load contacts")
		return
	}

	summaries, err := s.msgs.Contacts(r.Context(), claims.UserID, contactsLimit)
	if err != nil {
		log.Printf("aggregating contacts for %s: %v", claims.UserID, err)
		writeError(w, http.StatusInternalServerError, "failed to load contacts")
		return
	}
	byPartner := lo.KeyBy(summaries, func(p *data.PartnerSummary) string {
		return p.PartnerID
	})

	others := lo.Filter(users, func(u *data.User, _ int) bool {
		return u.ID.Hex() != claims.UserID
	})
	contacts := lo.Map(others, func(u *data.User, _ int) *data.Contact {
		id := u.ID.Hex()
		c := &data.Contact{
			UserID: id,
			Name:   u.Name,
			Email:  u.Email,
			Role:   u.Role,
			Online: s.hub.Online(id),
		}
		if summary, ok := byPartner[id]; ok {
			at := summary.LastMessageAt
			c.LastMessage = summary.LastMessage
			c.LastMessageAt = &at
		}
		return c
	})

	writeJSON(w, http.StatusOK, map[string]any{"contacts": contacts})
}
