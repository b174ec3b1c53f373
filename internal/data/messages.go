package data

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// ErrMessageNotFound is returned when no message matches the query.
var ErrMessageNotFound = errors.New("message not found")

// MessagesStore provides message database operations.
type MessagesStore struct {
	coll     *mongo.Collection
	counters *mongo.Collection
}

// NewMessagesStore returns a MessagesStore using the given collections.
func NewMessagesStore(coll, counters *mongo.Collection) *MessagesStore {
	return &MessagesStore{coll: coll, counters: counters}
}

// Save persists a message and returns the canonical stored record.
//
// Missing id and timestamp fields are defaulted server-side. The id acts
// as an idempotency key: saving the same id twice returns the record
// stored first instead of inserting a duplicate. Every message is
// assigned a monotonic per-conversation sequence number at persistence
// time so display order does not depend on client clocks.
func (m *MessagesStore) Save(ctx context.Context, msg *Message) (*Message, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	msg.ConversationID = ConversationID(msg.SenderID, msg.ReceiverID)
	msg.CreatedAt = time.Now().UTC()

	seq, err := m.nextSeq(ctx, msg.ConversationID)
	if err != nil {
		return nil, err
	}
	msg.Seq = seq

	if _, err := m.coll.InsertOne(ctx, msg); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			// Retried send: hand back what was stored first. The claimed
			// sequence number is abandoned; gaps are harmless, ordering
			// only requires monotonicity.
			return m.GetByID(ctx, msg.ID)
		}
		return nil, err
	}
	return msg, nil
}

// GetByID returns the message with the given application-level id.
func (m *MessagesStore) GetByID(ctx context.Context, id string) (*Message, error) {
	var msg Message
	err := m.coll.FindOne(ctx, bson.M{"id": id}).Decode(&msg)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrMessageNotFound
		}
		return nil, err
	}
	return &msg, nil
}

// Conversation returns messages between two users ordered oldest→newest
// by the server-assigned sequence number.
func (m *MessagesStore) Conversation(ctx context.Context, user1, user2 string, limit int64) ([]*Message, error) {
	opts := options.Find().
		SetSort(bson.M{"seq": -1}).
		SetLimit(limit)

	filter := bson.M{"conversation_id": ConversationID(user1, user2)}

	cursor, err := m.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var messages []*Message
	if err = cursor.All(ctx, &messages); err != nil {
		return nil, err
	}

	// The query returned the newest slice of the conversation first;
	// flip it back to chronological order for display.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// Contacts aggregates the conversation partners of a user with the last
// exchanged message, most recent conversation first.
func (m *MessagesStore) Contacts(ctx context.Context, userID string, limit int64) ([]*PartnerSummary, error) {
	pipeline := mongo.Pipeline{
		// Messages the user sent or received.
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "$or", Value: bson.A{
				bson.D{{Key: "sender_id", Value: userID}},
				bson.D{{Key: "receiver_id", Value: userID}},
			}},
		}}},

		// Order within each conversation before grouping so $last picks
		// the newest message.
		bson.D{{Key: "$sort", Value: bson.D{
			{Key: "conversation_id", Value: 1},
			{Key: "seq", Value: 1},
		}}},

		// One group per partner: if the user sent the message the
		// partner is the receiver, otherwise the sender.
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: bson.D{
				{Key: "partner", Value: bson.D{
					{Key: "$cond", Value: bson.A{
						bson.D{{Key: "$eq", Value: bson.A{"$sender_id", userID}}},
						"$receiver_id",
						"$sender_id",
					}},
				}},
			}},
			{Key: "last_message", Value: bson.D{{Key: "$last", Value: "$content"}}},
			{Key: "last_message_at", Value: bson.D{{Key: "$last", Value: "$sent_at"}}},
		}}},

		bson.D{{Key: "$sort", Value: bson.D{{Key: "last_message_at", Value: -1}}}},
		bson.D{{Key: "$limit", Value: limit}},
	}

	cursor, err := m.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rows []struct {
		ID struct {
			Partner string `bson:"partner"`
		} `bson:"_id"`
		LastMessage   string    `bson:"last_message"`
		LastMessageAt time.Time `bson:"last_message_at"`
	}
	if err = cursor.All(ctx, &rows); err != nil {
		return nil, err
	}

	summaries := make([]*PartnerSummary, 0, len(rows))
	for _, r := range rows {
		summaries = append(summaries, &PartnerSummary{
			PartnerID:     r.ID.Partner,
			LastMessage:   r.LastMessage,
			LastMessageAt: r.LastMessageAt,
		})
	}
	return summaries, nil
}

// nextSeq atomically claims the next sequence number for a conversation.
func (m *MessagesStore) nextSeq(ctx context.Context, conversationID string) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := m.counters.FindOneAndUpdate(ctx,
		bson.M{"_id": conversationID},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Seq, nil
}
