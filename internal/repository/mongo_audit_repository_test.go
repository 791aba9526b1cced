package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/hayak-access/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func getMongoCollection(t *testing.T) *mongo.Collection {
	skipIfNoIntegration(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(envOr("TEST_MONGO_URI", "mongodb://localhost:27017")))
	require.NoError(t, err)
	require.NoError(t, client.Ping(ctx, nil))

	coll := client.Database(envOr("TEST_MONGO_DB", "hayak_access_test")).Collection("audit_" + uuid.New().String()[:8])
	t.Cleanup(func() {
		_ = coll.Drop(context.Background())
		_ = client.Disconnect(context.Background())
	})
	return coll
}

func TestMongoAuditRepository_AppendAndList(t *testing.T) {
	coll := getMongoCollection(t)
	ctx := context.Background()
	repo := NewMongoAuditRepository(coll)
	require.NoError(t, repo.EnsureIndexes(ctx))

	invitationID := uuid.New().String()
	base := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	steps := []struct {
		action domain.Action
		from   domain.InvitationState
		to     domain.InvitationState
	}{
		{domain.ActionCheckIn, domain.StateAccepted, domain.StateCheckedIn},
		{domain.ActionCreate, "", domain.StatePending},
		{domain.ActionAccept, domain.StatePending, domain.StateAccepted},
	}
	offsets := []time.Duration{2 * time.Minute, 0, time.Minute}

	for i, s := range steps {
		require.NoError(t, repo.Append(ctx, &domain.AuditEntry{
			ID:           uuid.New().String(),
			InvitationID: invitationID,
			EventID:      "evt-1",
			Action:       s.action,
			FromState:    s.from,
			ToState:      s.to,
			ActorID:      "actor-1",
			At:           base.Add(offsets[i]),
		}))
	}
	require.NoError(t, repo.Append(ctx, &domain.AuditEntry{
		ID: uuid.New().String(), InvitationID: "other", Action: domain.ActionCreate, ToState: domain.StatePending, At: base,
	}))

	entries, err := repo.ListByInvitation(ctx, invitationID)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, domain.ActionCreate, entries[0].Action)
	assert.Equal(t, domain.ActionAccept, entries[1].Action)
	assert.Equal(t, domain.ActionCheckIn, entries[2].Action)
	assert.True(t, entries[0].At.Equal(base))
}
