package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/grigta/adpulse/pkg/database"
	"github.com/grigta/adpulse/services/monitoring-service/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const AlertsCollection = "monitoring_alerts"

// AlertRepository stores alerts in MongoDB. The unique index on
// (client_id, fingerprint) is what makes CreateAlert idempotent.
type AlertRepository struct {
	collection *mongo.Collection
}

func NewAlertRepository(db *mongo.Database) *AlertRepository {
	return &AlertRepository{
		collection: db.Collection(AlertsCollection),
	}
}

// AlertIndexes returns the indexes the repository relies on.
func AlertIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "client_id", Value: 1}, {Key: "fingerprint", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("client_fingerprint_unique"),
		},
		{
			Keys: bson.D{
				{Key: "client_id", Value: 1},
				{Key: "status", Value: 1},
				{Key: "channel", Value: 1},
				{Key: "check_id", Value: 1},
			},
		},
		{
			Keys: bson.D{{Key: "client_id", Value: 1}, {Key: "detected_at", Value: -1}},
		},
	}
}

func (r *AlertRepository) Insert(ctx context.Context, alert *models.Alert) error {
	if alert.ID.IsZero() {
		alert.ID = primitive.NewObjectID()
	}
	if _, err := r.collection.InsertOne(ctx, alert); err != nil {
		return fmt.Errorf("failed to insert alert: %w", database.MapError(err))
	}
	return nil
}

func (r *AlertRepository) FindByFingerprint(ctx context.Context, clientID, fingerprint string) (*models.Alert, error) {
	var alert models.Alert
	err := r.collection.FindOne(ctx, bson.M{"client_id": clientID, "fingerprint": fingerprint}).Decode(&alert)
	if err != nil {
		return nil, database.MapError(err)
	}
	return &alert, nil
}

func (r *AlertRepository) GetByID(ctx context.Context, id string) (*models.Alert, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, database.ErrInvalidID
	}

	var alert models.Alert
	if err := r.collection.FindOne(ctx, bson.M{"_id": oid}).Decode(&alert); err != nil {
		return nil, database.MapError(err)
	}
	return &alert, nil
}

// Transition applies t only if the alert is currently in one of t.From.
// It returns database.ErrConflict when the alert exists in another status.
func (r *AlertRepository) Transition(ctx context.Context, id string, t models.StatusTransition) (*models.Alert, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, database.ErrInvalidID
	}

	filter := bson.M{"_id": oid, "status": bson.M{"$in": t.From}}
	update := bson.M{"$set": transitionFields(t)}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var alert models.Alert
	err = r.collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(&alert)
	if err == nil {
		return &alert, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to update alert status: %w", database.MapError(err))
	}

	count, err := r.collection.CountDocuments(ctx, bson.M{"_id": oid})
	if err != nil {
		return nil, database.MapError(err)
	}
	if count == 0 {
		return nil, database.ErrNotFound
	}
	return nil, database.ErrConflict
}

func transitionFields(t models.StatusTransition) bson.M {
	set := bson.M{"status": t.To, "updated_at": t.At}
	switch t.To {
	case models.AlertStatusAcknowledged:
		set["acknowledged_at"] = t.At
		set["acknowledged_by"] = t.Actor
	case models.AlertStatusResolved:
		set["resolved_at"] = t.At
		set["resolved_by"] = t.Actor
		set["resolution_reason"] = t.Reason
	}
	return set
}

// ResolveOpen closes every open or acknowledged alert in scope.
func (r *AlertRepository) ResolveOpen(ctx context.Context, scope models.ResolveScope, t models.StatusTransition) (int64, error) {
	filter := bson.M{
		"client_id": scope.ClientID,
		"channel":   scope.Channel,
		"check_id":  scope.CheckID,
		"status":    bson.M{"$in": t.From},
	}

	result, err := r.collection.UpdateMany(ctx, filter, bson.M{"$set": transitionFields(t)})
	if err != nil {
		return 0, fmt.Errorf("failed to resolve alerts: %w", database.MapError(err))
	}
	return result.ModifiedCount, nil
}

// List returns alerts newest first. An empty clientID spans all clients.
func (r *AlertRepository) List(ctx context.Context, clientID string, f models.AlertFilter) ([]models.Alert, error) {
	filter := bson.M{}
	if clientID != "" {
		filter["client_id"] = clientID
	}
	if f.Channel != "" {
		filter["channel"] = f.Channel
	}
	if f.Severity != "" {
		filter["severity"] = f.Severity
	}
	if f.Type != "" {
		filter["type"] = f.Type
	}
	if f.CheckID != "" {
		filter["check_id"] = f.CheckID
	}
	if len(f.Statuses) > 0 {
		filter["status"] = bson.M{"$in": f.Statuses}
	}

	opts := options.Find().SetSort(bson.D{{Key: "detected_at", Value: -1}})
	if f.Limit > 0 {
		opts.SetLimit(int64(f.Limit))
	}
	if f.Offset > 0 {
		opts.SetSkip(int64(f.Offset))
	}

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", database.MapError(err))
	}
	defer cursor.Close(ctx)

	alerts := []models.Alert{}
	if err := cursor.All(ctx, &alerts); err != nil {
		return nil, fmt.Errorf("failed to decode alerts: %w", err)
	}
	return alerts, nil
}
