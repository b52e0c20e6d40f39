package ingestwf

import (
	"context"

	"github.com/google/uuid"
	"go.temporal.io/api/enums/v1"
	temporalsdkclient "go.temporal.io/sdk/client"
)

// Dispatcher starts one workflow per document; its ID makes re-dispatch of a
// running document a no-op.
type Dispatcher struct {
	Client    temporalsdkclient.Client
	TaskQueue string
}

func (d *Dispatcher) DispatchIngest(ctx context.Context, documentID uuid.UUID) error {
	_, err := d.Client.ExecuteWorkflow(ctx, temporalsdkclient.StartWorkflowOptions{
		ID:                       WorkflowID(documentID),
		TaskQueue:                d.TaskQueue,
		WorkflowIDReusePolicy:    enums.WORKFLOW_ID_REUSE_POLICY_ALLOW_DUPLICATE,
		WorkflowIDConflictPolicy: enums.WORKFLOW_ID_CONFLICT_POLICY_USE_EXISTING,
	}, WorkflowName, Input{DocumentID: documentID.String()})
	return err
}

func WorkflowID(documentID uuid.UUID) string {
	return "ingest-" + documentID.String()
}
