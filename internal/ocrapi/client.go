package ocrapi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/joseph-ayodele/plansets/internal/extract"
	"github.com/joseph-ayodele/plansets/internal/ingest"
)

const (
	schemaInstructions = `Extract utility infrastructure data from tables including:
- Structure IDs and connections
- Elevation data (rim, invert, sump)
- Pipe specifications (diameter, material, length)
- Location information

Focus on numerical data with units (feet, inches).`
	schemaGuidelines = "Extract tabular data only. Include units when specified."
)

var _ extract.Service = (*Client)(nil)

// Upload sends the PDF and waits for the service to finish ingesting it.
func (c *Client) Upload(ctx context.Context, doc ingest.Document) (res extract.UploadResult, err error) {
	tr := &transcript{}
	defer func() { res.Raw = tr.attach(res.Raw) }()

	b, err := os.ReadFile(doc.SourcePath)
	if err != nil {
		return extract.UploadResult{}, &extract.PermanentError{Step: extract.StepUpload, Reason: "unreadable document", Err: err}
	}
	body := map[string]any{
		"document": map[string]any{
			"file": map[string]any{
				"contents": base64.StdEncoding.EncodeToString(b),
				"filename": doc.Name,
			},
		},
		"dataset": c.cfg.Dataset,
	}

	raw, err := c.send(ctx, tr, http.MethodPost, "/document", body)
	res = extract.UploadResult{Raw: raw}
	if err != nil {
		return res, err
	}
	var out struct {
		JobID      string `json:"jobId"`
		DocumentID string `json:"documentId"`
	}
	if err := decode(extract.StepUpload, raw, &out); err != nil {
		return res, err
	}
	if out.DocumentID == "" || out.JobID == "" {
		return res, &extract.PermanentError{Step: extract.StepUpload, Reason: "missing documentId or jobId"}
	}
	res.RemoteID = out.DocumentID

	if err := c.waitForJob(ctx, tr, extract.StepUpload, out.JobID); err != nil {
		return res, err
	}
	c.logger.Info("ocrapi.upload.ok", "doc_id", doc.ID, "remote_id", out.DocumentID)
	return res, nil
}

// GenerateSchema asks the service to derive an extraction schema from the document
// and to standardize the document with it.
func (c *Client) GenerateSchema(ctx context.Context, remoteID string) (res extract.SchemaResult, err error) {
	tr := &transcript{}
	defer func() { res.Raw = tr.attach(res.Raw) }()

	body := map[string]any{
		"schemaName":             "utility_" + shortID(remoteID),
		"documentIds":            []string{remoteID},
		"instructions":           schemaInstructions,
		"guidelines":             schemaGuidelines,
		"standardizeUsingSchema": true,
	}
	raw, err := c.send(ctx, tr, http.MethodPost, "/schema/autogenerate", body)
	if err != nil {
		return extract.SchemaResult{Raw: raw}, err
	}
	var job struct {
		JobID string `json:"jobId"`
	}
	if err := decode(extract.StepSchema, raw, &job); err != nil {
		return extract.SchemaResult{Raw: raw}, err
	}
	if err := c.waitForJob(ctx, tr, extract.StepSchema, job.JobID); err != nil {
		return extract.SchemaResult{Raw: raw}, err
	}

	raw, err = c.send(ctx, tr, http.MethodGet, "/schema/autogenerate/"+job.JobID, nil)
	res = extract.SchemaResult{Raw: raw}
	if err != nil {
		return res, err
	}
	var out struct {
		SchemaID           string   `json:"schemaId"`
		StandardizationIDs []string `json:"standardizationIds"`
	}
	if err := decode(extract.StepSchema, raw, &out); err != nil {
		return res, err
	}
	if out.SchemaID == "" {
		return res, &extract.PermanentError{Step: extract.StepSchema, Reason: "missing schemaId"}
	}
	res.SchemaID = out.SchemaID
	res.StandardizationIDs = out.StandardizationIDs
	return res, nil
}

// Standardize fetches the structured output for the document. When schema
// generation did not already standardize it, a batch standardization is started.
func (c *Client) Standardize(ctx context.Context, remoteID string, schema extract.SchemaResult) (res extract.StandardizeResult, err error) {
	tr := &transcript{}
	defer func() { res.Raw = tr.attach(res.Raw) }()

	ids := schema.StandardizationIDs
	if len(ids) == 0 {
		raw, err := c.send(ctx, tr, http.MethodPost, "/standardize/batch", map[string]any{
			"documentIds": []string{remoteID},
			"schemaId":    schema.SchemaID,
		})
		if err != nil {
			return extract.StandardizeResult{Raw: raw}, err
		}
		var job struct {
			JobID              string   `json:"jobId"`
			StandardizationIDs []string `json:"standardizationIds"`
		}
		if err := decode(extract.StepStandardize, raw, &job); err != nil {
			return extract.StandardizeResult{Raw: raw}, err
		}
		if err := c.waitForJob(ctx, tr, extract.StepStandardize, job.JobID); err != nil {
			return extract.StandardizeResult{Raw: raw}, err
		}
		ids = job.StandardizationIDs
	}
	if len(ids) == 0 {
		return extract.StandardizeResult{}, &extract.PermanentError{Step: extract.StepStandardize, Reason: "no standardizations produced"}
	}

	var bodies []string
	for _, id := range ids {
		raw, err := c.send(ctx, tr, http.MethodGet, "/standardization/"+id, nil)
		res.StatusCode = raw.StatusCode
		if err != nil {
			res.Body = raw.Body
			if raw.StatusCode == http.StatusNotFound {
				// The standardization exists but is not ready yet.
				return res, &extract.TransientError{Step: extract.StepStandardize, Err: fmt.Errorf("standardization %s not ready: %w", id, err)}
			}
			return res, err
		}
		if err := validateStandardization(raw.Body); err != nil {
			res.Body = raw.Body
			return res, &extract.PermanentError{Step: extract.StepStandardize, Reason: "malformed standardization", Err: err}
		}
		bodies = append(bodies, string(raw.Body))
		res.Payloads = append(res.Payloads, json.RawMessage(raw.Body))
	}
	res.Body = []byte("[" + strings.Join(bodies, ",") + "]")
	return res, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
