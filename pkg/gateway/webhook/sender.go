package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/memorylane-ai/memorylane/pkg/core"
)

// HTTPSender delivers outbound replies by POSTing JSON to the
// platform's send endpoint.
type HTTPSender struct {
	endpoint string
	token    string
	client   *http.Client
}

// NewHTTPSender creates a sender for the given endpoint. The token, if
// set, is sent as a bearer credential.
func NewHTTPSender(endpoint, token string) *HTTPSender {
	return &HTTPSender{
		endpoint: endpoint,
		token:    token,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *HTTPSender) Send(ctx context.Context, ownerID, text string) error {
	body, err := json.Marshal(map[string]string{
		"to":   ownerID,
		"text": text,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return core.NewAPIError(fmt.Sprintf("send message: status %d: %s", resp.StatusCode, snippet))
	}
	return nil
}

// HTTPDownloader fetches media payloads from the platform's media
// endpoint. The media id is appended to the base URL.
type HTTPDownloader struct {
	baseURL  string
	token    string
	maxBytes int64
	client   *http.Client
}

// NewHTTPDownloader creates a downloader rooted at baseURL.
func NewHTTPDownloader(baseURL, token string, maxBytes int64) *HTTPDownloader {
	if maxBytes <= 0 {
		maxBytes = 25 << 20
	}
	return &HTTPDownloader{
		baseURL:  baseURL,
		token:    token,
		maxBytes: maxBytes,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

func (d *HTTPDownloader) Download(ctx context.Context, mediaID string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/"+mediaID, nil)
	if err != nil {
		return nil, "", err
	}
	if d.token != "" {
		req.Header.Set("Authorization", "Bearer "+d.token)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download media %s: %w", mediaID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download media %s: status %d", mediaID, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, d.maxBytes))
	if err != nil {
		return nil, "", fmt.Errorf("download media %s: %w", mediaID, err)
	}
	return data, resp.Header.Get("Content-Type"), nil
}
