package ingestwf

import (
	"fmt"
	"strings"
	"time"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// IngestDocumentWorkflow processes one uploaded document. Pipeline failures
// are recorded on the document and not retried; only infrastructure failures
// (timeouts, lost workers) are.
func IngestDocumentWorkflow(ctx workflow.Context, in Input) error {
	if strings.TrimSpace(in.DocumentID) == "" {
		return fmt.Errorf("ingestwf: missing document_id")
	}
	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:    5 * time.Second,
			BackoffCoefficient: 2,
			MaximumAttempts:    3,
		},
	})
	return workflow.ExecuteActivity(ctx, ActivityProcess, in).Get(ctx, nil)
}

func workflowOptions() workflow.RegisterOptions {
	return workflow.RegisterOptions{Name: WorkflowName}
}

// Register adds the workflow and its activity to a worker.
func Register(r interface {
	RegisterWorkflowWithOptions(w interface{}, options workflow.RegisterOptions)
	RegisterActivityWithOptions(a interface{}, options activity.RegisterOptions)
}, acts *Activities) {
	r.RegisterWorkflowWithOptions(IngestDocumentWorkflow, workflowOptions())
	r.RegisterActivityWithOptions(acts.Process, activity.RegisterOptions{Name: ActivityProcess})
}
