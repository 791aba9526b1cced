package repository

import (
	"context"
	"fmt"

	"github.com/prohmpiriya/hayak-access/internal/domain"
	"github.com/prohmpiriya/hayak-access/pkg/telemetry"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.opentelemetry.io/otel/attribute"
)

// MongoAuditRepository appends audit entries to a Mongo collection
type MongoAuditRepository struct {
	coll *mongo.Collection
}

// NewMongoAuditRepository creates a new MongoAuditRepository
func NewMongoAuditRepository(coll *mongo.Collection) *MongoAuditRepository {
	return &MongoAuditRepository{coll: coll}
}

// EnsureIndexes creates the lookup index used by ListByInvitation
func (r *MongoAuditRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "invitation_id", Value: 1}, {Key: "at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create audit index: %w", err)
	}
	return nil
}

// Append inserts one entry
func (r *MongoAuditRepository) Append(ctx context.Context, entry *domain.AuditEntry) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.mongo.audit.append")
	defer span.End()
	span.SetAttributes(
		attribute.String("invitation_id", entry.InvitationID),
		attribute.String("action", string(entry.Action)),
	)

	if _, err := r.coll.InsertOne(ctx, entry); err != nil {
		spanFail(span, err)
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListByInvitation returns the trail of one invitation, oldest first
func (r *MongoAuditRepository) ListByInvitation(ctx context.Context, invitationID string) ([]*domain.AuditEntry, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.mongo.audit.list")
	defer span.End()
	span.SetAttributes(attribute.String("invitation_id", invitationID))

	opts := options.Find().SetSort(bson.D{{Key: "at", Value: 1}})
	cursor, err := r.coll.Find(ctx, bson.M{"invitation_id": invitationID}, opts)
	if err != nil {
		spanFail(span, err)
		return nil, fmt.Errorf("failed to query audit trail: %w", err)
	}
	defer cursor.Close(ctx)

	var entries []*domain.AuditEntry
	if err := cursor.All(ctx, &entries); err != nil {
		spanFail(span, err)
		return nil, fmt.Errorf("failed to decode audit trail: %w", err)
	}
	return entries, nil
}
