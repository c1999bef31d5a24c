package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/notafacil/receipt-pipeline/internal/common"
	"github.com/notafacil/receipt-pipeline/internal/entity"
	"github.com/notafacil/receipt-pipeline/internal/provider"
)

// Extract implements provider.Extractor over vision chat/completions: the
// ordered photo set goes out as data-URL image parts and the response is
// schema-validated before unmarshal.
func (c *Client) Extract(ctx context.Context, images []provider.Image) (*entity.ExtractedInvoice, error) {
	rid := uuid.New().String()
	start := time.Now()
	log := c.log.With("req_id", rid, "provider", c.cfg.Name, "job_id", common.JobIDFromContext(ctx))

	log.Info("provider.extract.start",
		"model", c.cfg.Model,
		"images", len(images),
	)

	content := []map[string]any{
		{"type": "text", "text": provider.BuildExtractionUserPrompt(len(images))},
	}
	for _, img := range images {
		content = append(content, map[string]any{
			"type": "image_url",
			"image_url": map[string]any{
				"url": fmt.Sprintf("data:%s;base64,%s", img.MIMEType, base64.StdEncoding.EncodeToString(img.Data)),
			},
		})
	}

	schema := provider.BuildInvoiceJSONSchema()
	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": provider.BuildExtractionSystemPrompt()},
			{"role": "user", "content": content},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(schema)},
		},
	}

	rawContent, err := c.chat(ctx, body)
	if err != nil {
		log.Error("provider.extract.failed",
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	inv, dropped, err := provider.DecodeInvoice(rawContent)
	if err != nil {
		log.Error("provider.extract.decode_failed",
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}
	if len(dropped) > 0 {
		log.Warn("provider.extract.lenient_sanitize_applied", "dropped", dropped)
	}

	log.Info("provider.extract.ok",
		"issuer", inv.IssuerName,
		"total", inv.Total,
		"items", len(inv.Items),
		"confidence", inv.Confidence,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return inv, nil
}

// classificationResponse is the wire shape of the batched classify call.
type classificationResponse struct {
	Items []struct {
		Index       int    `json:"index"`
		Category    string `json:"category"`
		Subcategory string `json:"subcategory"`
	} `json:"items"`
}

// Classify implements provider.Classifier with one batched text request.
func (c *Client) Classify(ctx context.Context, descriptions []string, taxonomy map[string][]string) (map[int]provider.CategoryPair, error) {
	rid := uuid.New().String()
	start := time.Now()
	log := c.log.With("req_id", rid, "provider", c.cfg.Name, "job_id", common.JobIDFromContext(ctx))

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": "You classify supermarket line items. Answer ONLY with the requested JSON."},
			{"role": "user", "content": provider.BuildClassificationPrompt(descriptions, taxonomy)},
		},
	}

	rawContent, err := c.chat(ctx, body)
	if err != nil {
		log.Warn("provider.classify.failed",
			"error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	var resp classificationResponse
	if err := json.Unmarshal(rawContent, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal classification: %w", err)
	}

	out := make(map[int]provider.CategoryPair, len(resp.Items))
	for _, it := range resp.Items {
		out[it.Index] = provider.CategoryPair{Category: it.Category, Subcategory: it.Subcategory}
	}
	log.Debug("provider.classify.ok",
		"requested", len(descriptions), "classified", len(out),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return out, nil
}

// chat posts a chat/completions body and returns the first choice's content.
func (c *Client) chat(ctx context.Context, body map[string]any) ([]byte, error) {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, endpoint, body)
	if err != nil {
		return nil, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, fmt.Errorf("decode %s response: %w", c.cfg.Name, err)
	}
	if len(cc.Choices) == 0 {
		return nil, fmt.Errorf("no choices in %s response", c.cfg.Name)
	}
	return []byte(strings.TrimSpace(cc.Choices[0].Message.Content)), nil
}

func (c *Client) post(ctx context.Context, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s http error: %w", c.cfg.Name, err)
	}
	defer func(Body io.ReadCloser) {
		if err := Body.Close(); err != nil {
			c.log.Warn("provider response body close error", "provider", c.cfg.Name, "error", err)
		}
	}(resp.Body)

	buf := new(bytes.Buffer)
	if _, err := buf.ReadFrom(resp.Body); err != nil {
		return nil, fmt.Errorf("%s read body: %w", c.cfg.Name, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s status %d: %s", c.cfg.Name, resp.StatusCode, buf.String())
	}
	return buf.Bytes(), nil
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
