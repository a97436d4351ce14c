package repository

import (
	"context"
	"fmt"

	"github.com/grigta/adpulse/pkg/database"
	"github.com/grigta/adpulse/services/monitoring-service/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const MetricsCollection = "ad_metrics"

// MetricsRepository holds daily entity rows synced from the ad platforms.
type MetricsRepository struct {
	collection *mongo.Collection
}

func NewMetricsRepository(db *mongo.Database) *MetricsRepository {
	return &MetricsRepository{
		collection: db.Collection(MetricsCollection),
	}
}

func MetricsIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "client_id", Value: 1},
				{Key: "channel", Value: 1},
				{Key: "account_id", Value: 1},
				{Key: "entity_type", Value: 1},
				{Key: "entity_id", Value: 1},
				{Key: "date", Value: 1},
			},
			Options: options.Index().SetUnique(true).SetName("metric_row_unique"),
		},
		{
			Keys:    bson.D{{Key: "date", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(400 * 24 * 3600),
		},
	}
}

// GetMetrics returns rows for the account whose date falls in the range.
func (r *MetricsRepository) GetMetrics(ctx context.Context, ref models.AccountRef, entityType models.EntityType, dateRange models.DateRange) ([]models.MetricRow, error) {
	filter := bson.M{
		"client_id":   ref.ClientID,
		"channel":     ref.Channel,
		"account_id":  ref.AccountID,
		"entity_type": entityType,
		"date":        bson.M{"$gte": dateRange.From, "$lt": dateRange.End()},
	}
	opts := options.Find().SetSort(bson.D{{Key: "date", Value: 1}, {Key: "entity_id", Value: 1}})

	cursor, err := r.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", database.MapError(err))
	}
	defer cursor.Close(ctx)

	var rows []models.MetricRow
	if err := cursor.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("failed to decode metrics: %w", err)
	}
	return rows, nil
}

// UpsertRows replaces rows keyed by account, entity and date.
func (r *MetricsRepository) UpsertRows(ctx context.Context, rows []models.MetricRow) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	writes := make([]mongo.WriteModel, 0, len(rows))
	for _, row := range rows {
		filter := bson.M{
			"client_id":   row.ClientID,
			"channel":     row.Channel,
			"account_id":  row.AccountID,
			"entity_type": row.EntityType,
			"entity_id":   row.EntityID,
			"date":        row.Date,
		}
		writes = append(writes, mongo.NewReplaceOneModel().SetFilter(filter).SetReplacement(row).SetUpsert(true))
	}

	result, err := r.collection.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	if err != nil {
		return 0, fmt.Errorf("failed to upsert metrics: %w", database.MapError(err))
	}
	return result.UpsertedCount + result.ModifiedCount, nil
}
