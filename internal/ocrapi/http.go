package ocrapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/plansets/internal/extract"
)

// transcript collects every reply received while serving one step.
type transcript struct {
	exchanges []extract.Exchange
}

func (t *transcript) record(method, path string, raw extract.Raw) {
	if raw.StatusCode == 0 && raw.Body == nil {
		return
	}
	t.exchanges = append(t.exchanges, extract.Exchange{Method: method, Path: path, StatusCode: raw.StatusCode, Body: raw.Body})
}

func (t *transcript) attach(raw extract.Raw) extract.Raw {
	raw.Exchanges = append([]extract.Exchange(nil), t.exchanges...)
	return raw
}

// send issues one JSON request against the service, records the reply in tr and
// returns it. A non-2xx reply yields *extract.StatusError alongside the body.
func (c *Client) send(ctx context.Context, tr *transcript, method, path string, body any) (extract.Raw, error) {
	reqID := uuid.New().String()
	start := time.Now()
	url := strings.TrimRight(c.cfg.BaseURL, "/") + path

	var reader io.Reader
	size := 0
	if body != nil {
		bs, err := json.Marshal(body)
		if err != nil {
			c.logger.Error("ocrapi.http.encode_error", "req_id", reqID, "error", err)
			return extract.Raw{}, fmt.Errorf("encode json: %w", err)
		}
		reader = bytes.NewReader(bs)
		size = len(bs)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		c.logger.Error("ocrapi.http.build_request_error", "req_id", reqID, "error", err)
		return extract.Raw{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-API-Key", c.cfg.APIKey)

	c.logger.Debug("ocrapi.http.request", "req_id", reqID, "method", method, "path", path, "content_length", size)

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("ocrapi.http.send_error", "req_id", reqID, "path", path, "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return extract.Raw{}, err
	}
	defer func(Body io.ReadCloser) {
		err := Body.Close()
		if err != nil {
			c.logger.Warn("ocrapi.http.response_body_close_error", "req_id", reqID, "error", err)
		}
	}(resp.Body)

	raw, err := io.ReadAll(resp.Body)
	out := extract.Raw{StatusCode: resp.StatusCode, Body: raw}
	tr.record(method, path, out)
	if err != nil {
		return out, fmt.Errorf("read response: %w", err)
	}

	c.logger.Debug("ocrapi.http.response",
		"req_id", reqID,
		"path", path,
		"status", resp.StatusCode,
		"bytes", len(raw),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)

	if resp.StatusCode/100 != 2 {
		return out, &extract.StatusError{StatusCode: resp.StatusCode, Body: raw}
	}
	return out, nil
}

// decode unmarshals a reply body; a malformed body is a permanent failure.
func decode(step string, raw extract.Raw, v any) error {
	if err := json.Unmarshal(raw.Body, v); err != nil {
		return &extract.PermanentError{Step: step, Reason: "malformed response", Err: err}
	}
	return nil
}
