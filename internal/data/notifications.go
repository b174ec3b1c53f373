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

// ErrNotificationNotFound is returned when no notification matches the
// query for the given recipient.
var ErrNotificationNotFound = errors.New("notification not found")

// NotificationsStore provides notification database operations.
type NotificationsStore struct {
	coll *mongo.Collection
}

// NewNotificationsStore returns a NotificationsStore using the given collection.
func NewNotificationsStore(coll *mongo.Collection) *NotificationsStore {
	return &NotificationsStore{coll: coll}
}

// Save persists a notification, defaulting id and timestamp when absent,
// and returns the stored record.
func (n *NotificationsStore) Save(ctx context.Context, notif *Notification) (*Notification, error) {
	if notif.ID == "" {
		notif.ID = uuid.NewString()
	}
	if notif.CreatedAt.IsZero() {
		notif.CreatedAt = time.Now().UTC()
	}

	if _, err := n.coll.InsertOne(ctx, notif); err != nil {
		return nil, err
	}
	return notif, nil
}

// ForRecipient returns the recipient's notifications, newest first.
func (n *NotificationsStore) ForRecipient(ctx context.Context, recipientID string) ([]*Notification, error) {
	opts := options.Find().SetSort(bson.M{"created_at": -1})
	cursor, err := n.coll.Find(ctx, bson.M{"recipient_id": recipientID}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var notifs []*Notification
	if err = cursor.All(ctx, &notifs); err != nil {
		return nil, err
	}
	return notifs, nil
}

// MarkRead flips the read flag of one notification. The update is scoped
// to the recipient so users cannot touch each other's notifications.
func (n *NotificationsStore) MarkRead(ctx context.Context, id, recipientID string) error {
	result, err := n.coll.UpdateOne(ctx,
		bson.M{"id": id, "recipient_id": recipientID},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// MarkAllRead flips the read flag of every unread notification of the
// recipient and returns how many were updated.
func (n *NotificationsStore) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	result, err := n.coll.UpdateMany(ctx,
		bson.M{"recipient_id": recipientID, "read": false},
		bson.M{"$set": bson.M{"read": true}},
	)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// Delete removes one notification, scoped to the recipient.
func (n *NotificationsStore) Delete(ctx context.Context, id, recipientID string) error {
	result, err := n.coll.DeleteOne(ctx, bson.M{"id": id, "recipient_id": recipientID})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrNotificationNotFound
	}
	return nil
}
