// Package events handles audit event emission for lineage changes and
// reconciliation runs
package events

import (
	"context"
	"encoding/json"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/trellis/pkg/kafka"
	"github.com/Ramsey-B/trellis/pkg/models"
	"github.com/Ramsey-B/trellis/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter publishes audit events. Emission failures are logged and
// swallowed; the durable history table is the source of truth, events are
// best-effort notification.
type Emitter interface {
	EmitLineageChanged(ctx context.Context, eventType string, strain *models.Strain, brand string, oldLineage, newLineage *models.Lineage)
	EmitReconciliationCompleted(ctx context.Context, tenantID, cacheHandle string, run *models.MatchRun)
}

// KafkaEmitter is the kafka-backed Emitter
type KafkaEmitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewKafkaEmitter creates a new kafka-backed event emitter
func NewKafkaEmitter(producer *kafka.Producer, logger ectologger.Logger) *KafkaEmitter {
	return &KafkaEmitter{
		producer: producer,
		logger:   logger,
	}
}

// Lineage event types
const (
	EventSovereignSet     = "lineage.sovereign_set"
	EventSovereignCleared = "lineage.sovereign_cleared"
	EventOverrideSet      = "override.set"
	EventOverrideCleared  = "override.cleared"
	EventReconCompleted   = "reconciliation.completed"
)

// EmitLineageChanged emits one audit event for a sovereign or override change
func (e *KafkaEmitter) EmitLineageChanged(ctx context.Context, eventType string, strain *models.Strain, brand string, oldLineage, newLineage *models.Lineage) {
	ctx, span := tracing.StartSpan(ctx, "events.KafkaEmitter.EmitLineageChanged")
	defer span.End()

	data, _ := json.Marshal(map[string]any{
		"schema_version": SchemaVersion,
		"old_lineage":    oldLineage,
		"new_lineage":    newLineage,
	})

	event := &kafka.LineageEvent{
		EventType:  eventType,
		TenantID:   strain.TenantID,
		StrainID:   strain.ID,
		StrainName: strain.NormalizedName,
		Brand:      brand,
		Data:       data,
	}

	if err := e.producer.PublishLineageEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"event_type": eventType, "strain_id": strain.ID}).Error("Failed to emit lineage event")
	}
}

// EmitReconciliationCompleted emits the run summary event
func (e *KafkaEmitter) EmitReconciliationCompleted(ctx context.Context, tenantID, cacheHandle string, run *models.MatchRun) {
	ctx, span := tracing.StartSpan(ctx, "events.KafkaEmitter.EmitReconciliationCompleted")
	defer span.End()

	event := &kafka.ReconciliationEvent{
		EventType:      EventReconCompleted,
		TenantID:       tenantID,
		CacheHandle:    cacheHandle,
		MatchedCount:   run.MatchedCount,
		UnmatchedCount: run.UnmatchedCount,
		SkippedCount:   run.SkippedCount,
	}

	if err := e.producer.PublishReconciliationEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"cache_handle": cacheHandle}).Error("Failed to emit reconciliation event")
	}
}

// NopEmitter discards all events. Used when kafka is not configured and in
// tests.
type NopEmitter struct{}

func (NopEmitter) EmitLineageChanged(ctx context.Context, eventType string, strain *models.Strain, brand string, oldLineage, newLineage *models.Lineage) {
}

func (NopEmitter) EmitReconciliationCompleted(ctx context.Context, tenantID, cacheHandle string, run *models.MatchRun) {
}
