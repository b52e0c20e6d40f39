package ingestwf

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.temporal.io/sdk/testsuite"

	"github.com/yungbote/knowtree-backend/internal/platform/logger"
	"github.com/yungbote/knowtree-backend/internal/realtime"
	"github.com/yungbote/knowtree-backend/internal/realtime/bus"
)

type fakeProcessor struct {
	calls int
	err   error
}

func (f *fakeProcessor) ProcessDocument(_ context.Context, _ uuid.UUID) error {
	f.calls++
	return f.err
}

func runWorkflow(t *testing.T, acts *Activities, in Input) error {
	t.Helper()
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestWorkflowEnvironment()
	Register(env, acts)
	env.ExecuteWorkflow(WorkflowName, in)
	if !env.IsWorkflowCompleted() {
		t.Fatalf("workflow did not complete")
	}
	return env.GetWorkflowError()
}

func TestIngestWorkflowProcessesAndPublishes(t *testing.T) {
	proc := &fakeProcessor{}
	events := bus.NewMemoryBus()
	var got []realtime.SSEMessage
	_ = events.StartForwarder(context.Background(), func(m realtime.SSEMessage) { got = append(got, m) })

	docID := uuid.New()
	acts := &Activities{Log: logger.Nop(), Ingest: proc, Events: events}
	if err := runWorkflow(t, acts, Input{DocumentID: docID.String()}); err != nil {
		t.Fatalf("workflow: %v", err)
	}
	if proc.calls != 1 {
		t.Fatalf("calls: want=1 got=%d", proc.calls)
	}
	if len(got) != 1 || got[0].Event != realtime.SSEEventDocumentProcessed || got[0].Channel != DocumentChannel(docID) {
		t.Fatalf("events: got %+v", got)
	}
}

func TestIngestWorkflowDoesNotRetryPipelineFailure(t *testing.T) {
	proc := &fakeProcessor{err: errors.New("parse failed")}
	acts := &Activities{Log: logger.Nop(), Ingest: proc}
	if err := runWorkflow(t, acts, Input{DocumentID: uuid.NewString()}); err == nil {
		t.Fatalf("expected workflow error")
	}
	if proc.calls != 1 {
		t.Fatalf("calls: want=1 got=%d", proc.calls)
	}
}

func TestIngestWorkflowRejectsBadInput(t *testing.T) {
	proc := &fakeProcessor{}
	acts := &Activities{Log: logger.Nop(), Ingest: proc}
	if err := runWorkflow(t, acts, Input{}); err == nil {
		t.Fatalf("expected error for empty document id")
	}
	if err := runWorkflow(t, acts, Input{DocumentID: "nope"}); err == nil {
		t.Fatalf("expected error for malformed document id")
	}
	if proc.calls != 0 {
		t.Fatalf("calls: want=0 got=%d", proc.calls)
	}
}
