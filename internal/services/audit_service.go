package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/gton-market/settlement/internal/models"
	"go.uber.org/zap"
)

type AuditLogger interface {
	Record(ctx context.Context, actorID uuid.UUID, action, entityType string, entityID uuid.UUID, meta map[string]any)
}

type AuditStore interface {
	Log(ctx context.Context, entry models.AuditLog) error
	GetByEntity(ctx context.Context, entityType string, entityID uuid.UUID, limit, offset int) ([]models.AuditLog, error)
}

// AuditService records admin actions. Write failures are logged, not returned.
type AuditService struct {
	store AuditStore
	log   *zap.Logger
}

func NewAuditService(store AuditStore, log *zap.Logger) *AuditService {
	return &AuditService{store: store, log: log}
}

func (s *AuditService) Record(ctx context.Context, actorID uuid.UUID, action, entityType string, entityID uuid.UUID, meta map[string]any) {
	actorType := "admin"
	var actor *uuid.UUID
	if actorID != uuid.Nil {
		actor = &actorID
	} else {
		actorType = "system"
	}
	err := s.store.Log(ctx, models.AuditLog{
		ActorUserID: actor,
		ActorType:   actorType,
		Action:      action,
		EntityType:  entityType,
		EntityID:    &entityID,
		Meta:        meta,
	})
	if err != nil {
		s.log.Error("failed to write audit log", zap.String("action", action), zap.Error(err))
	}
}

func (s *AuditService) History(ctx context.Context, entityType string, entityID uuid.UUID) ([]models.AuditLog, error) {
	return s.store.GetByEntity(ctx, entityType, entityID, 100, 0)
}
