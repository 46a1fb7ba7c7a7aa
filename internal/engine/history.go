package engine

import (
	"context"
	"strings"

	"shiftline/internal/domain"
)

// History returns every recorded attempt on the entity, accepted or
// rejected, oldest first.
func (e Engine) History(ctx context.Context, entityID string) ([]domain.AuditEntry, error) {
	if strings.TrimSpace(entityID) == "" {
		return nil, validationf("entity id is required")
	}
	return e.Audit.History(ctx, entityID)
}

// HistoryAfter pages through an entity history after the given sequence.
func (e Engine) HistoryAfter(ctx context.Context, entityID string, afterSeq int64, limit int) ([]domain.AuditEntry, error) {
	if strings.TrimSpace(entityID) == "" {
		return nil, validationf("entity id is required")
	}
	return e.Audit.HistoryPage(ctx, entityID, afterSeq, limit)
}
