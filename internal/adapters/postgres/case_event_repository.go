package postgres

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/domain"
	"github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/ports"
)

type caseEventRepository struct {
	db *gorm.DB
}

// Append stores one event. The (case_id, seq) constraint rejects a second
// writer racing for the same position.
func (r *caseEventRepository) Append(ctx context.Context, event domain.CaseEvent) error {
	rec := toCaseEventModel(event)
	if err := r.db.WithContext(ctx).Create(&rec).Error; err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: case %s seq %d already recorded", domain.ErrConflict, event.CaseID, event.Seq)
		}
		return fmt.Errorf("%w: append case event: %v", domain.ErrStorageUnavailable, err)
	}
	return nil
}

func (r *caseEventRepository) Replay(ctx context.Context, caseID string) ([]domain.CaseEvent, error) {
	var rows []caseEventModel
	err := r.db.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("seq ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: replay case events: %v", domain.ErrStorageUnavailable, err)
	}
	out := make([]domain.CaseEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainCaseEvent(row))
	}
	return out, nil
}

// CaseIDs lists every case with at least one recorded event.
func (r *caseEventRepository) CaseIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).
		Model(&caseEventModel{}).
		Distinct("case_id").
		Order("case_id ASC").
		Pluck("case_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("%w: list cases: %v", domain.ErrStorageUnavailable, err)
	}
	return ids, nil
}

var _ ports.CaseEventLog = (*caseEventRepository)(nil)
