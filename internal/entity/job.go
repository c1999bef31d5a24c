package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/notafacil/receipt-pipeline/constants"
)

// ProcessingJob represents one user-submitted batch of receipt photos for
// data transfer between layers. Mutated only by the pipeline; the upload
// surface creates it and the confirmation surface polls it.
type ProcessingJob struct {
	ID          uuid.UUID           `json:"id"`
	OwnerID     uuid.UUID           `json:"owner_id"`
	Status      constants.JobStatus `json:"status"`
	ImageRefs   []string            `json:"image_refs"`
	ImageCount  int                 `json:"image_count"`
	Result      *ExtractedInvoice   `json:"result,omitempty"`
	Confidence  float32             `json:"confidence"`
	Errors      []string            `json:"errors,omitempty"`
	Warnings    []string            `json:"warnings,omitempty"`
	InvoiceID   *uuid.UUID          `json:"invoice_id,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
	CompletedAt *time.Time          `json:"completed_at,omitempty"`
}

// AddError appends a job-level error message.
func (j *ProcessingJob) AddError(msg string) {
	j.Errors = append(j.Errors, msg)
}

// AddWarning appends a job-level warning message.
func (j *ProcessingJob) AddWarning(msg string) {
	j.Warnings = append(j.Warnings, msg)
}
