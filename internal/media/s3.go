package media

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"instagram-automation/utils"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

const uploadPrefix = "instagram_uploads/"

// objectKey names an uploaded object in a bucket.
func objectKey(now time.Time, name string) string {
	return fmt.Sprintf("%s%d_%s", uploadPrefix, now.Unix(), name)
}

type S3Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Endpoint        string // MinIO or another S3 compatible host
	Bucket          string
	UseSSL          bool
}

// S3Provider copies uploads into a public-read bucket.
type S3Provider struct {
	api      s3iface.S3API
	bucket   string
	endpoint string
	region   string
	useSSL   bool
	now      func() time.Time
}

func NewS3Provider(cfg S3Config) (*S3Provider, error) {
	awsConfig := &aws.Config{
		Region: aws.String(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, "")
	}

	// Support MinIO for local development
	if cfg.Endpoint != "" {
		awsConfig.Endpoint = aws.String(cfg.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
		if !cfg.UseSSL {
			awsConfig.DisableSSL = aws.Bool(true)
		}
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}
	return newS3Provider(s3.New(sess), cfg), nil
}

func newS3Provider(api s3iface.S3API, cfg S3Config) *S3Provider {
	return &S3Provider{
		api:      api,
		bucket:   cfg.Bucket,
		endpoint: cfg.Endpoint,
		region:   cfg.Region,
		useSSL:   cfg.UseSSL,
		now:      time.Now,
	}
}

func (p *S3Provider) Name() string { return "s3" }

func (p *S3Provider) PublicURL(ctx context.Context, file LocalFile) (string, error) {
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

	_, err = p.api.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
		ACL:         aws.String(s3.ObjectCannedACLPublicRead),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file to S3: %w", err)
	}
	return p.objectURL(key), nil
}

func (p *S3Provider) objectURL(key string) string {
	if p.endpoint != "" && !strings.Contains(p.endpoint, "amazonaws.com") {
		protocol := "http"
		if p.useSSL {
			protocol = "https"
		}
		host := strings.TrimPrefix(strings.TrimPrefix(p.endpoint, "http://"), "https://")
		return fmt.Sprintf("%s://%s/%s/%s", protocol, strings.TrimRight(host, "/"), p.bucket, key)
	}

	region := p.region
	if region == "" {
		region = "us-east-1"
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", p.bucket, region, key)
}
