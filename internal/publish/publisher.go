// Package publish mirrors a documentation tree into an object-storage
// bucket under a fixed destination prefix.
package publish

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"git.home.luguber.info/inful/docship/internal/builder"
	"git.home.luguber.info/inful/docship/internal/config"
	"git.home.luguber.info/inful/docship/internal/logfields"
)

// ObjectWriter is the subset of the object-store client the publisher
// needs. *minio.Client satisfies it.
type ObjectWriter interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
}

// objectGetter is the read side of the client. *minio.Client satisfies
// it; writers that cannot serve reads simply skip the manifest fetch.
type objectGetter interface {
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
}

// Publisher uploads rendered documentation into the bucket. The sync
// is additive and overwriting only: objects under unrelated prefixes
// and other versions are never touched.
type Publisher struct {
	store      ObjectWriter
	bucket     string
	destPrefix string
}

// Result reports what a sync wrote. ObjectsWritten remains meaningful
// on error: a partial sync leaves that many new objects in the bucket.
type Result struct {
	ObjectsWritten int
	BytesWritten   int64
}

// New connects to the configured object store and returns a publisher.
func New(cfg config.Bucket) (*Publisher, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}
	return NewWithClient(client, cfg.Name, cfg.DestPrefix), nil
}

// NewWithClient builds a publisher around an existing client.
func NewWithClient(store ObjectWriter, bucket, destPrefix string) *Publisher {
	return &Publisher{store: store, bucket: bucket, destPrefix: destPrefix}
}

// FetchManifest reads the published version index from the bucket.
// A missing manifest, or a store without a read side, yields nil.
func (p *Publisher) FetchManifest(ctx context.Context) ([]byte, error) {
	getter, ok := p.store.(objectGetter)
	if !ok {
		return nil, nil
	}
	key := p.destPrefix + "/" + builder.ManifestFileName
	obj, err := getter.GetObject(ctx, p.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		// GetObject is lazy, so a nonexistent key surfaces here.
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to fetch %s: %w", key, err)
	}
	return data, nil
}

// Sync mirrors srcDir into the bucket under the destination prefix
// with public-read visibility. Directory structure maps one-to-one
// onto object keys. The first failed upload aborts the sync; objects
// already written stay in place.
func (p *Publisher) Sync(ctx context.Context, srcDir string) (Result, error) {
	var res Result
	err := filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		key := p.destPrefix + "/" + filepath.ToSlash(rel)

		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()

		opts := minio.PutObjectOptions{
			ContentType: ContentTypeFor(rel),
			// Documentation is world-readable by design of the pipeline.
			UserMetadata: map[string]string{"x-amz-acl": "public-read"},
		}
		if _, err := p.store.PutObject(ctx, p.bucket, key, f, info.Size(), opts); err != nil {
			return fmt.Errorf("failed to upload %s: %w", key, err)
		}

		res.ObjectsWritten++
		res.BytesWritten += info.Size()
		slog.Debug("Uploaded object", logfields.Bucket(p.bucket), slog.String("key", key))
		return nil
	})
	if err != nil {
		return res, err
	}

	slog.Info("Publish sync complete",
		logfields.Bucket(p.bucket),
		logfields.Prefix(p.destPrefix),
		slog.Int("objects", res.ObjectsWritten),
		slog.Int64("bytes", res.BytesWritten))
	return res, nil
}
