package data

import (
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// User roles.
const (
	RoleAdmin   = "admin"
	RoleStudent = "student"
)

// Notification kinds.
const (
	NotifyTask    = "task"
	NotifyProject = "project"
	NotifyMessage = "message"
	NotifySystem  = "system"
)

// User maps to the users collection. The password hash is never
// serialized to JSON.
type User struct {
	ID        bson.ObjectID `bson:"_id,omitempty" json:"id"`
	Name      string        `bson:"name" json:"name"`
	Email     string        `bson:"email" json:"email"`
	Password  string        `bson:"password" json:"-"`
	Role      string        `bson:"role" json:"role"`
	StudentID string        `bson:"student_id,omitempty" json:"studentId,omitempty"`
	CreatedAt time.Time     `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time     `bson:"updated_at" json:"updatedAt"`
}

// Message maps to the messages collection. ID is the application-level
// idempotency key (client-supplied or server-assigned), Seq the
// server-assigned per-conversation sequence number.
type Message struct {
	ID             string    `bson:"id" json:"id"`
	ConversationID string    `bson:"conversation_id" json:"-"`
	Seq            int64     `bson:"seq" json:"seq"`
	SenderID       string    `bson:"sender_id" json:"senderId"`
	ReceiverID     string    `bson:"receiver_id" json:"receiverId"`
	Content        string    `bson:"content" json:"content"`
	SentAt         time.Time `bson:"sent_at" json:"timestamp"`
	CreatedAt      time.Time `bson:"created_at" json:"-"`
}

// Notification maps to the notifications collection. Only the read flag
// is ever mutated after creation.
type Notification struct {
	ID          string    `bson:"id" json:"id"`
	RecipientID string    `bson:"recipient_id" json:"userId"`
	Kind        string    `bson:"kind" json:"type"`
	Message     string    `bson:"message" json:"message"`
	RelatedID   string    `bson:"related_id,omitempty" json:"relatedId,omitempty"`
	Read        bool      `bson:"read" json:"read"`
	CreatedAt   time.Time `bson:"created_at" json:"timestamp"`
}

// PartnerSummary is one row of the last-message-per-partner aggregation.
type PartnerSummary struct {
	PartnerID     string
	LastMessage   string
	LastMessageAt time.Time
}

// Contact is a chat partner as returned by the contacts endpoint.
type Contact struct {
	UserID        string     `json:"id"`
	Name          string     `json:"name"`
	Email         string     `json:"email"`
	Role          string     `json:"role"`
	Online        bool       `json:"online"`
	LastMessage   string     `json:"lastMessage,omitempty"`
	LastMessageAt *time.Time `json:"lastMessageAt,omitempty"`
}

// ConversationID returns the canonical id of the conversation between two
// users. Membership is symmetric: A→B and B→A share one thread.
func ConversationID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + ":" + b
}

// ValidKind reports whether k is a known notification kind.
func ValidKind(k string) bool {
	switch strings.ToLower(k) {
	case NotifyTask, NotifyProject, NotifyMessage, NotifySystem:
		return true
	}
	return false
}
