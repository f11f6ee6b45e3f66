package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/go_orders/internal/domain"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const notificationsCollection = "notifications"

func ConnectMongoDB(ctx context.Context, uri, database string) (*mongo.Database, error) {
	clientOpts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(20)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return client.Database(database), nil
}

// Notification is one entry of the admin inbox.
type Notification struct {
	ID          string    `bson:"_id"`
	EventID     string    `bson:"event_id"`
	EventType   string    `bson:"event_type"`
	OrderID     int64     `bson:"order_id"`
	OrderNumber string    `bson:"order_number"`
	UserID      int64     `bson:"user_id"`
	Status      string    `bson:"status"`
	Payment     string    `bson:"payment_status"`
	Total       string    `bson:"total_amount"`
	Message     string    `bson:"message"`
	Read        bool      `bson:"read"`
	CreatedAt   time.Time `bson:"created_at"`
}

// Inbox stores events as unread admin notifications.
type Inbox struct {
	collection *mongo.Collection
}

func NewInbox(db *mongo.Database) *Inbox {
	return &Inbox{collection: db.Collection(notificationsCollection)}
}

func (i *Inbox) Name() string { return "mongo" }

func (i *Inbox) Notify(ctx context.Context, ev domain.OrderEvent) error {
	n := Notification{
		ID:          uuid.NewString(),
		EventID:     ev.EventID,
		EventType:   ev.Type,
		OrderID:     ev.OrderID,
		OrderNumber: ev.OrderNumber,
		UserID:      ev.UserID,
		Status:      string(ev.Status),
		Payment:     string(ev.PaymentStatus),
		Total:       ev.TotalAmount.StringFixed(2),
		Message:     summary(ev),
		CreatedAt:   ev.OccurredAt.UTC(),
	}
	if _, err := i.collection.InsertOne(ctx, n); err != nil {
		return fmt.Errorf("failed to insert notification: %w", err)
	}
	return nil
}

// Unread returns unread notifications, newest first.
func (i *Inbox) Unread(ctx context.Context, limit int64) ([]Notification, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cur, err := i.collection.Find(ctx, bson.M{"read": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to find notifications: %w", err)
	}
	var out []Notification
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("failed to decode notifications: %w", err)
	}
	return out, nil
}

func (i *Inbox) MarkRead(ctx context.Context, id string) error {
	res, err := i.collection.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"read": true}})
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func summary(ev domain.OrderEvent) string {
	switch ev.Type {
	case domain.EventOrderCreated:
		return fmt.Sprintf("New order %s for %s", ev.OrderNumber, ev.TotalAmount.StringFixed(2))
	case domain.EventOrderPaymentChanged:
		return fmt.Sprintf("Order %s payment %s -> %s", ev.OrderNumber, ev.PrevPayment, ev.PaymentStatus)
	default:
		return fmt.Sprintf("Order %s %s -> %s", ev.OrderNumber, ev.PrevStatus, ev.Status)
	}
}
