//go:build integration

package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/grigta/adpulse/pkg/database"
	"github.com/grigta/adpulse/pkg/testutil"
	"github.com/grigta/adpulse/services/monitoring-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// alertStore is the contract shared by the Mongo and Postgres stores.
type alertStore interface {
	Insert(ctx context.Context, alert *models.Alert) error
	FindByFingerprint(ctx context.Context, clientID, fingerprint string) (*models.Alert, error)
	Transition(ctx context.Context, id string, t models.StatusTransition) (*models.Alert, error)
	ResolveOpen(ctx context.Context, scope models.ResolveScope, t models.StatusTransition) (int64, error)
	List(ctx context.Context, clientID string, f models.AlertFilter) ([]models.Alert, error)
}

func exerciseAlertStore(t *testing.T, ctx context.Context, store alertStore) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	newAlert := func() *models.Alert {
		return &models.Alert{
			ClientID:         "client-1",
			Channel:          models.ChannelMetaAds,
			CheckID:          "disapproved_ads",
			Type:             models.AlertTypeFundamentalCheck,
			Severity:         models.SeverityCritical,
			Status:           models.AlertStatusOpen,
			Title:            "3 disapproved ads",
			ShortDescription: "Account act_1 has 3 ads rejected by platform review.",
			SuggestedActions: []string{"Review the rejection reasons"},
			Details: models.AlertDetails{
				Kind:           models.DetailKindDisapprovedAds,
				DisapprovedAds: &models.DisapprovedAdsDetails{AccountID: "act_1", LookbackDays: 7, SpendingAds: 1},
			},
			Fingerprint: "disapproved_ads:2026-03-10",
			DetectedAt:  now,
			UpdatedAt:   now,
		}
	}

	var (
		wg         sync.WaitGroup
		mu         sync.Mutex
		inserted   int
		duplicates int
	)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := store.Insert(ctx, newAlert())
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				inserted++
			case errors.Is(err, database.ErrDuplicate):
				duplicates++
			default:
				t.Errorf("unexpected insert error: %v", err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, inserted)
	assert.Equal(t, 15, duplicates)

	stored, err := store.FindByFingerprint(ctx, "client-1", "disapproved_ads:2026-03-10")
	require.NoError(t, err)
	require.NotNil(t, stored.Details.DisapprovedAds)
	assert.Equal(t, 1, stored.Details.DisapprovedAds.SpendingAds)

	acked, err := store.Transition(ctx, stored.ID.Hex(), models.StatusTransition{
		From:  []models.AlertStatus{models.AlertStatusOpen},
		To:    models.AlertStatusAcknowledged,
		At:    now.Add(time.Minute),
		Actor: "user-1",
	})
	require.NoError(t, err)
	assert.Equal(t, models.AlertStatusAcknowledged, acked.Status)

	_, err = store.Transition(ctx, stored.ID.Hex(), models.StatusTransition{
		From: []models.AlertStatus{models.AlertStatusOpen},
		To:   models.AlertStatusAcknowledged,
		At:   now,
	})
	assert.True(t, errors.Is(err, database.ErrConflict))

	n, err := store.ResolveOpen(ctx,
		models.ResolveScope{ClientID: "client-1", Channel: models.ChannelMetaAds, CheckID: "disapproved_ads"},
		models.StatusTransition{
			From:   []models.AlertStatus{models.AlertStatusOpen, models.AlertStatusAcknowledged},
			To:     models.AlertStatusResolved,
			At:     now.Add(time.Hour),
			Actor:  "system",
			Reason: "auto_resolved",
		})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	open, err := store.List(ctx, "client-1", models.AlertFilter{Statuses: []models.AlertStatus{models.AlertStatusOpen, models.AlertStatusAcknowledged}})
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestAlertRepository_Mongo(t *testing.T) {
	ctx := context.Background()
	container, err := testutil.StartMongoContainer(ctx)
	require.NoError(t, err)
	defer container.Close(ctx)

	db, err := database.NewMongoDB(container.URI, container.DatabaseName, 10*time.Second)
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.CreateIndexes(ctx, AlertsCollection, AlertIndexes()))
	exerciseAlertStore(t, ctx, NewAlertRepository(db.GetDatabase()))
}

func TestPostgresAlertStore(t *testing.T) {
	ctx := context.Background()
	container, err := testutil.StartPostgresContainer(ctx)
	require.NoError(t, err)
	defer container.Close(ctx)

	db, err := database.NewPostgres(ctx, database.PostgresConfig{
		Host:     container.Host,
		Port:     container.Port,
		User:     container.User,
		Password: container.Password,
		DBName:   container.Database,
	})
	require.NoError(t, err)
	defer db.Close()

	store := NewPostgresAlertStore(db)
	require.NoError(t, store.Migrate(ctx))
	exerciseAlertStore(t, ctx, store)
}

func TestSignalAndMetricsRepositories_Mongo(t *testing.T) {
	ctx := context.Background()
	container, err := testutil.StartMongoContainer(ctx)
	require.NoError(t, err)
	defer container.Close(ctx)

	db, err := database.NewMongoDB(container.URI, container.DatabaseName, 10*time.Second)
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, db.CreateIndexes(ctx, SignalsCollection, SignalIndexes()))
	require.NoError(t, db.CreateIndexes(ctx, MetricsCollection, MetricsIndexes()))

	day := time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC)
	metrics := NewMetricsRepository(db.GetDatabase())
	row := models.MetricRow{
		Date: day, ClientID: "client-1", Channel: models.ChannelMetaAds, AccountID: "act_1",
		EntityType: models.EntityTypeAd, EntityID: "ad-1", Impressions: 1000, Clicks: 20, Spend: 15,
	}
	_, err = metrics.UpsertRows(ctx, []models.MetricRow{row, row})
	require.NoError(t, err)

	rows, err := metrics.GetMetrics(ctx,
		models.AccountRef{ClientID: "client-1", Channel: models.ChannelMetaAds, AccountID: "act_1"},
		models.EntityTypeAd, models.DateRange{From: day, To: day})
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	signals := NewSignalRepository(db.GetDatabase())
	signal := &models.FatigueSignal{
		ClientID: "client-1", Channel: models.ChannelMetaAds, EntityType: models.EntityTypeAd, EntityID: "ad-1",
		Day: "2026-03-10", Severity: models.SeverityHigh, DetectedAt: day,
	}
	stored, err := signals.Upsert(ctx, signal)
	require.NoError(t, err)
	_, err = signals.Acknowledge(ctx, stored.ID.Hex(), "user-1", day.Add(time.Hour))
	require.NoError(t, err)

	again, err := signals.Upsert(ctx, signal)
	require.NoError(t, err)
	assert.Equal(t, stored.ID, again.ID)
	assert.True(t, again.Acknowledged)
}
