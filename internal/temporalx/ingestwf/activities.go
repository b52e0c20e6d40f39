package ingestwf

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.temporal.io/sdk/temporal"

	"github.com/yungbote/knowtree-backend/internal/platform/logger"
	"github.com/yungbote/knowtree-backend/internal/realtime"
	"github.com/yungbote/knowtree-backend/internal/realtime/bus"
)

// Processor is satisfied by *ingest.Service.
type Processor interface {
	ProcessDocument(ctx context.Context, documentID uuid.UUID) error
}

type Activities struct {
	Log    *logger.Logger
	Ingest Processor
	Events bus.Bus
}

func (a *Activities) Process(ctx context.Context, in Input) error {
	if a == nil || a.Ingest == nil {
		return fmt.Errorf("ingestwf: activity not configured")
	}
	docID, err := uuid.Parse(in.DocumentID)
	if err != nil || docID == uuid.Nil {
		return temporal.NewNonRetryableApplicationError("invalid document_id", "invalid_input", err)
	}

	if err := a.Ingest.ProcessDocument(ctx, docID); err != nil {
		a.publish(ctx, docID, realtime.SSEEventDocumentFailed, map[string]any{"error": err.Error()})
		return temporal.NewNonRetryableApplicationError(err.Error(), "ingest_failed", err)
	}
	a.publish(ctx, docID, realtime.SSEEventDocumentProcessed, nil)
	return nil
}

func (a *Activities) publish(ctx context.Context, docID uuid.UUID, ev realtime.SSEEvent, data any) {
	if a.Events == nil {
		return
	}
	msg := realtime.SSEMessage{Channel: DocumentChannel(docID), Event: ev, Data: data}
	if err := a.Events.Publish(ctx, msg); err != nil && a.Log != nil {
		a.Log.Warn("Failed to publish document event", "document_id", docID.String(), "error", err)
	}
}

// DocumentChannel names the realtime channel carrying a document's status.
func DocumentChannel(docID uuid.UUID) string {
	return "document:" + docID.String()
}
