package extract

import (
	"context"
	"encoding/json"

	"github.com/joseph-ayodele/plansets/internal/ingest"
)

// Step names used for logging, metrics and the response store.
const (
	StepUpload      = "upload"
	StepSchema      = "schema"
	StepStandardize = "standardize"
)

// Raw is the verbatim reply of one external call. Exchanges lists every reply
// received while serving the step, job polls included, in the order received.
type Raw struct {
	StatusCode int
	Body       []byte
	Exchanges  []Exchange
}

// Exchange is one request made on behalf of a step and the reply it got.
type Exchange struct {
	Method     string
	Path       string
	StatusCode int
	Body       []byte
}

type UploadResult struct {
	Raw
	RemoteID string
}

type SchemaResult struct {
	Raw
	SchemaID           string
	StandardizationIDs []string
}

type StandardizeResult struct {
	Raw
	Payloads []json.RawMessage
}

// Service is the external OCR/AI service. Implementations return the raw reply
// alongside any error so every attempt can be persisted.
type Service interface {
	Upload(ctx context.Context, doc ingest.Document) (UploadResult, error)
	GenerateSchema(ctx context.Context, remoteID string) (SchemaResult, error)
	Standardize(ctx context.Context, remoteID string, schema SchemaResult) (StandardizeResult, error)
}
