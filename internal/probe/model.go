package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/storage"
)

// ModelSizer resolves the size of a model asset in bytes
type ModelSizer struct {
	httpClient *http.Client
	newGCS     func(ctx context.Context) (*storage.Client, error)
}

// NewModelSizer creates a sizer for local paths, http(s) URLs and gs:// objects
func NewModelSizer() *ModelSizer {
	return &ModelSizer{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		newGCS: func(ctx context.Context) (*storage.Client, error) {
			return storage.NewClient(ctx)
		},
	}
}

// Size returns the asset size, 0 when location is empty
func (m *ModelSizer) Size(ctx context.Context, location string) (int64, error) {
	if location == "" {
		return 0, nil
	}
	u, err := url.Parse(location)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		return m.fileSize(location)
	}
	switch u.Scheme {
	case "http", "https":
		return m.httpSize(ctx, location)
	case "gs":
		return m.gcsSize(ctx, u.Host, strings.TrimPrefix(u.Path, "/"))
	case "file":
		return m.fileSize(u.Path)
	default:
		return 0, fmt.Errorf("unsupported model location scheme: %s", u.Scheme)
	}
}

func (m *ModelSizer) fileSize(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("stat model file: %w", err)
	}
	return info.Size(), nil
}

func (m *ModelSizer) httpSize(ctx context.Context, location string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, location, nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("model HEAD failed with status %d", resp.StatusCode)
	}
	if resp.ContentLength < 0 {
		return 0, nil
	}
	return resp.ContentLength, nil
}

func (m *ModelSizer) gcsSize(ctx context.Context, bucket, object string) (int64, error) {
	client, err := m.newGCS(ctx)
	if err != nil {
		return 0, fmt.Errorf("creating storage client: %w", err)
	}
	defer client.Close()

	attrs, err := client.Bucket(bucket).Object(object).Attrs(ctx)
	if err != nil {
		return 0, fmt.Errorf("reading object attributes: %w", err)
	}
	return attrs.Size, nil
}
