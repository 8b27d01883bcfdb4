// Package mongo provides the MongoDB read model for delivered settlement
// events. The archive is written by the outbox dispatcher after confirmed
// handoff and serves history queries only.
package mongo

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/marketplace-settlement/internal/domain/outbox"
)

const (
	// EventCollectionName is the name of the settlement event collection
	EventCollectionName = "settlement_events"
)

// EventArchiveRepository implements the outbox.ArchiveRepository interface for MongoDB
type EventArchiveRepository struct {
	db     *mongo.Database
	logger *slog.Logger
}

// NewEventArchiveRepository creates a new MongoDB event archive repository
func NewEventArchiveRepository(logger *slog.Logger, db *mongo.Database) outbox.ArchiveRepository {
	return &EventArchiveRepository{
		db:     db,
		logger: logger,
	}
}

// Insert stores a delivered settlement event. Replays of the same outbox
// message overwrite the previous copy instead of duplicating it.
func (r *EventArchiveRepository) Insert(ctx context.Context, event *outbox.SettlementEvent) error {
	collection := r.db.Collection(EventCollectionName)

	filter := bson.M{"event_id": event.EventID}
	update := bson.M{"$set": event}
	opts := options.Update().SetUpsert(true)

	_, err := collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		r.logger.Error("Failed to archive settlement event",
			"event_id", event.EventID,
			"event_type", string(event.EventType),
			"error", err)
		return fmt.Errorf("failed to archive settlement event: %w", err)
	}

	return nil
}

// List retrieves archived settlement events sorted by delivery time in
// descending order (newest first). A non-nil aggregateID narrows the query
// to one escrow or payout.
func (r *EventArchiveRepository) List(ctx context.Context, aggregateID *uuid.UUID, limit, offset int) ([]*outbox.SettlementEvent, error) {
	collection := r.db.Collection(EventCollectionName)

	filter := bson.M{}
	if aggregateID != nil {
		filter["aggregate_id"] = *aggregateID
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "delivered_at", Value: -1}, {Key: "event_id", Value: -1}}).
		SetLimit(int64(limit)).
		SetSkip(int64(offset))

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		r.logger.Error("Failed to list archived settlement events", "error", err)
		return nil, fmt.Errorf("failed to list archived settlement events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []*outbox.SettlementEvent
	if err := cursor.All(ctx, &events); err != nil {
		r.logger.Error("Failed to decode archived settlement events", "error", err)
		return nil, fmt.Errorf("failed to decode archived settlement events: %w", err)
	}

	return events, nil
}
