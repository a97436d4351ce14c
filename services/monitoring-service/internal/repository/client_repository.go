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

const ClientsCollection = "client_monitoring_configs"

// ClientRepository reads client monitoring configs. The monitoring core
// only reads them; Upsert exists for provisioning tools and tests.
type ClientRepository struct {
	collection *mongo.Collection
}

func NewClientRepository(db *mongo.Database) *ClientRepository {
	return &ClientRepository{
		collection: db.Collection(ClientsCollection),
	}
}

func ClientIndexes() []mongo.IndexModel {
	return []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "client_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "enabled", Value: 1}},
		},
	}
}

func (r *ClientRepository) ListEnabledClients(ctx context.Context) ([]models.ClientMonitoringConfig, error) {
	opts := options.Find().SetSort(bson.D{{Key: "client_id", Value: 1}})
	cursor, err := r.collection.Find(ctx, bson.M{"enabled": true}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", database.MapError(err))
	}
	defer cursor.Close(ctx)

	clients := []models.ClientMonitoringConfig{}
	if err := cursor.All(ctx, &clients); err != nil {
		return nil, fmt.Errorf("failed to decode clients: %w", err)
	}
	return clients, nil
}

func (r *ClientRepository) GetClient(ctx context.Context, clientID string) (*models.ClientMonitoringConfig, error) {
	var cfg models.ClientMonitoringConfig
	if err := r.collection.FindOne(ctx, bson.M{"client_id": clientID}).Decode(&cfg); err != nil {
		return nil, database.MapError(err)
	}
	return &cfg, nil
}

func (r *ClientRepository) Upsert(ctx context.Context, cfg models.ClientMonitoringConfig) error {
	_, err := r.collection.ReplaceOne(ctx, bson.M{"client_id": cfg.ClientID}, cfg, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to save client config: %w", database.MapError(err))
	}
	return nil
}
