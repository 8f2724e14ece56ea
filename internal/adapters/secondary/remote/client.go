package remote

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	log "github.com/sirupsen/logrus"

	ports "leaf-disease-service/internal/core/ports/output"
)

type Client struct {
	httpClient  *http.Client
	urlTemplate string
}

// NewClient downloads artifacts from urlTemplate, where %s is replaced by
// the escaped remote id.
func NewClient(urlTemplate string, timeout time.Duration) ports.ArtifactFetcher {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		urlTemplate: urlTemplate,
	}
}

func (c *Client) URL(remoteID string) string {
	return fmt.Sprintf(c.urlTemplate, url.QueryEscape(remoteID))
}

func (c *Client) Fetch(ctx context.Context, remoteID string, dst io.Writer) (int64, error) {
	u := c.URL(remoteID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, fmt.Errorf("create download request: %w", err)
	}

	log.WithFields(log.Fields{
		"remote_id": remoteID,
		"url":       u,
	}).Debug("fetching artifact")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
		return 0, fmt.Errorf("download %s: unexpected status %d", remoteID, resp.StatusCode)
	}

	n, err := io.Copy(dst, resp.Body)
	if err != nil {
		return n, fmt.Errorf("read download body: %w", err)
	}
	return n, nil
}
