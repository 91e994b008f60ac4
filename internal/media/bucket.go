// internal/media/bucket.go
package media

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"wahub/internal/metrics"
)

// Bucket is a thin client for the object-storage REST API. Writes are
// upserts, so re-uploading identical content to the same path is a no-op.
type Bucket struct {
	baseURL    string
	bucket     string
	serviceKey string
	http       *http.Client
}

func NewBucket(baseURL, bucket, serviceKey string) *Bucket {
	return &Bucket{
		baseURL:    baseURL,
		bucket:     bucket,
		serviceKey: serviceKey,
		http:       &http.Client{Timeout: 60 * time.Second},
	}
}

func (b *Bucket) Put(path string, content []byte, mimeType string) error {
	url := fmt.Sprintf("%s/storage/v1/object/%s/%s", b.baseURL, b.bucket, path)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(content))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+b.serviceKey)
	req.Header.Set("Content-Type", mimeType)
	req.Header.Set("x-upsert", "true")

	resp, err := b.http.Do(req)
	if err != nil {
		metrics.UpstreamFailures.WithLabelValues("storage").Inc()
		return fmt.Errorf("bucket put: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.UpstreamFailures.WithLabelValues("storage").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("bucket put: status %d: %s", resp.StatusCode, body)
	}
	return nil
}

func (b *Bucket) PublicURL(path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", b.baseURL, b.bucket, path)
}
