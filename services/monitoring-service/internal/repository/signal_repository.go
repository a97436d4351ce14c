package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/grigta/adpulse/pkg/database"
	"github.com/grigta/adpulse/services/monitoring-service/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const SignalsCollection = "fatigue_signals"

// SignalRepository stores fatigue signals, one per entity and day.
type SignalRepository struct {
	collection *mongo.Collection
}

func NewSignalRepository(db *mongo.Database) *SignalRepository {
	return &SignalRepository{
		collection: db.Collection(SignalsCollection),
	}
}

func SignalIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "client_id", Value: 1},
				{Key: "channel", Value: 1},
				{Key: "entity_type", Value: 1},
				{Key: "entity_id", Value: 1},
				{Key: "day", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("signal_entity_day_unique"),
		},
		{
			Keys: bson.D{{Key: "client_id", Value: 1}, {Key: "day", Value: -1}, {Key: "severity", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "detected_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(180 * 24 * 3600),
		},
	}
}

// Upsert writes the latest assessment for the signal's entity and day.
// Acknowledgement and the first detection time survive re-runs.
func (r *SignalRepository) Upsert(ctx context.Context, signal *models.FatigueSignal) (*models.FatigueSignal, error) {
	filter := bson.M{
		"client_id":   signal.ClientID,
		"channel":     signal.Channel,
		"entity_type": signal.EntityType,
		"entity_id":   signal.EntityID,
		"day":         signal.Day,
	}
	update := bson.M{
		"$set": bson.M{
			"account_id":        signal.AccountID,
			"entity_name":       signal.EntityName,
			"parent_id":         signal.ParentID,
			"current":           signal.Current,
			"baseline":          signal.Baseline,
			"deltas":            signal.Deltas,
			"baseline_points":   signal.BaselinePoints,
			"severity":          signal.Severity,
			"reasons":           signal.Reasons,
			"suggested_actions": signal.Actions,
		},
		"$setOnInsert": bson.M{
			"acknowledged": false,
			"detected_at":  signal.DetectedAt,
		},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var stored models.FatigueSignal
	if err := r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&stored); err != nil {
		return nil, fmt.Errorf("failed to upsert fatigue signal: %w", database.MapError(err))
	}
	return &stored, nil
}

func (r *SignalRepository) List(ctx context.Context, clientID string, f models.SignalFilter) ([]models.FatigueSignal, error) {
	filter := bson.M{"client_id": clientID}
	if f.Channel != "" {
		filter["channel"] = f.Channel
	}
	if f.Day != "" {
		filter["day"] = f.Day
	}
	if !f.IncludeAcked {
		filter["acknowledged"] = false
	}
	if f.MinSeverity != "" {
		filter["severity"] = bson.M{"$in": severitiesAtLeast(f.MinSeverity)}
	}

	opts := options.Find().SetSort(bson.D{{Key: "day", Value: -1}, {Key: "detected_at", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	if f.Offset > 0 {
		opts.SetSkip(int64(f.Offset))
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list fatigue signals: %w", database.MapError(err))
	}
	defer cursor.Close(ctx)

	signals := []models.FatigueSignal{}
	if err := cursor.All(ctx, &signals); err != nil {
		return nil, fmt.Errorf("failed to decode fatigue signals: %w", err)
	}
	return signals, nil
}

func (r *SignalRepository) GetByID(ctx context.Context, id string) (*models.FatigueSignal, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, database.ErrInvalidID
	}
	var signal models.FatigueSignal
	if err := r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&signal); err != nil {
		return nil, database.MapError(err)
	}
	return &signal, nil
}

// Acknowledge marks the signal as seen. Acknowledging twice keeps the first actor.
func (r *SignalRepository) Acknowledge(ctx context.Context, id, actor string, at time.Time) (*models.FatigueSignal, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, database.ErrInvalidID
	}

	filter := bson.M{"_id": oid, "acknowledged": false}
	update := bson.M{"$set": bson.M{"acknowledged": true, "acknowledged_by": actor, "acknowledged_at": at}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var signal models.FatigueSignal
	err = r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&signal)
	if err == nil {
		return &signal, nil
	}
	if mapped := database.MapError(err); mapped != database.ErrNotFound {
		return nil, fmt.Errorf("failed to acknowledge signal: %w", mapped)
	}
	return r.GetByID(ctx, id)
}

func severitiesAtLeast(min models.Severity) []models.Severity {
	var out []models.Severity
	for _, s := range []models.Severity{models.SeverityCritical, models.SeverityHigh, models.SeverityMedium, models.SeverityLow} {
		if s.Rank() >= min.Rank() {
			out = append(out, s)
		}
	}
	return out
}
