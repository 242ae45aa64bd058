package postgres

import "github.com/viralforge/mesh/services/platform-ops/M48-case-resolver/internal/domain"

func toDomainCaseEvent(m caseEventModel) domain.CaseEvent {
	return domain.CaseEvent{
		EventID: m.EventID, CaseID: m.CaseID, Seq: m.Seq, Type: m.EventType,
		OccurredAt: m.OccurredAt.UTC(),
	}
}

func toCaseEventModel(e domain.CaseEvent) caseEventModel {
	return caseEventModel{
		EventID: e.EventID, CaseID: e.CaseID, Seq: e.Seq, EventType: e.Type,
		OccurredAt: e.OccurredAt.UTC(),
	}
}
