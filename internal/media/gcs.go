package media

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"instagram-automation/utils"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	storagev1 "google.golang.org/api/storage/v1"
)

const gcsPublicBase = "https://storage.googleapis.com"

type GCSConfig struct {
	Bucket    string
	ProjectID string
	// Endpoint points at an emulator; requests are then sent unauthenticated.
	Endpoint string
	// PublicBaseURL overrides https://storage.googleapis.com in returned URLs.
	PublicBaseURL string
}

// GCSProvider uploads into a Cloud Storage bucket with a public-read ACL.
// Credentials come from Application Default Credentials.
type GCSProvider struct {
	svc        *storagev1.Service
	bucket     string
	publicBase string
	now        func() time.Time
}

// NewGCSProvider connects and checks that the bucket is reachable.
func NewGCSProvider(ctx context.Context, cfg GCSConfig) (*GCSProvider, error) {
	var opts []option.ClientOption
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint), option.WithoutAuthentication())
	}
	if cfg.ProjectID != "" {
		opts = append(opts, option.WithQuotaProject(cfg.ProjectID))
	}

	svc, err := storagev1.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	checkCtx, cancel := utils.WithShortTimeout(ctx)
	defer cancel()
	if _, err := svc.Buckets.Get(cfg.Bucket).Context(checkCtx).Do(); err != nil {
		return nil, fmt.Errorf("GCS bucket %q is not accessible: %w", cfg.Bucket, err)
	}

	publicBase := cfg.PublicBaseURL
	if publicBase == "" {
		publicBase = gcsPublicBase
	}
	return &GCSProvider{
		svc:        svc,
		bucket:     cfg.Bucket,
		publicBase: strings.TrimRight(publicBase, "/"),
		now:        time.Now,
	}, nil
}

func (p *GCSProvider) Name() string { return "gcs" }

func (p *GCSProvider) PublicURL(ctx context.Context, file LocalFile) (string, error) {
	f, err := os.Open(file.Path)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}
	defer f.Close()

	key := objectKey(p.now(), file.Name)
	contentType := file.ContentType
	if contentType == "" {
		contentType = "image/jpeg"
	}

	ctx, cancel := utils.WithLongTimeout(ctx)
	defer cancel()

	obj, err := p.svc.Objects.Insert(p.bucket, &storagev1.Object{Name: key, ContentType: contentType}).
		Media(f, googleapi.ContentType(contentType)).
		PredefinedAcl("publicRead").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("failed to upload file to GCS: %w", err)
	}
	if obj.Name != "" {
		key = obj.Name
	}
	return p.objectURL(key), nil
}

func (p *GCSProvider) objectURL(key string) string {
	return fmt.Sprintf("%s/%s/%s", p.publicBase, p.bucket, (&url.URL{Path: key}).EscapedPath())
}
