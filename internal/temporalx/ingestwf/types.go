// Package ingestwf runs document ingestion as a Temporal workflow.
package ingestwf

const (
	WorkflowName    = "ingest_document"
	ActivityProcess = "ingest_document_process"
)

type Input struct {
	DocumentID string `json:"document_id"`
}
