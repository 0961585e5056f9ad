package gcsupload

import (
	"context"
	"log/slog"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/BearBump/TrackIntake/internal/integrations/transfer"
	"github.com/pkg/errors"
	"google.golang.org/api/option"
)

const ContentType = "text/csv; charset=utf-8"

// Client складывает документы в GCS bucket вместо SFTP.
type Client struct {
	gcs    *storage.Client
	bucket string
	prefix string
}

// New creates a client with application default credentials. opts are passed to storage.NewClient.
func New(ctx context.Context, bucket, prefix string, opts ...option.ClientOption) (*Client, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("gcs bucket is empty")
	}
	gcs, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "storage.NewClient")
	}
	return &Client{gcs: gcs, bucket: bucket, prefix: prefix}, nil
}

func (c *Client) ObjectName(filename string) string {
	p := strings.Trim(c.prefix, "/")
	if p == "" {
		return filename
	}
	return path.Join(p, filename)
}

func (c *Client) Upload(ctx context.Context, content []byte, filename string) error {
	obj := c.ObjectName(filename)
	w := c.gcs.Bucket(c.bucket).Object(obj).NewWriter(ctx)
	w.ContentType = ContentType

	if _, err := w.Write(content); err != nil {
		_ = w.Close()
		return transfer.Classify(errors.Wrap(err, "write object"))
	}
	if err := w.Close(); err != nil {
		return transfer.Classify(errors.Wrap(err, "close object writer"))
	}

	slog.Info("gcs upload done", "bucket", c.bucket, "object", obj, "bytes", len(content))
	return nil
}

func (c *Client) Close() error {
	return c.gcs.Close()
}
