// Package media uploads user-supplied files (avatars, cover images) to
// S3-compatible object storage.
package media

import (
	"context"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/videotube/internal/common"
	serverconfig "github.com/dmitrijs2005/videotube/internal/server/config"
	"github.com/google/uuid"
)

// Uploader stores a local file and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// ObjectPutter is the part of *s3.Client used here.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) ObjectPutter {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

type S3Uploader struct {
	client   ObjectPutter
	bucket   string
	endpoint string
	now      func() time.Time
}

// NewS3Uploader builds an uploader with static credentials against the
// configured endpoint (MinIO in development).
func NewS3Uploader(ctx context.Context, c *serverconfig.Config) (*S3Uploader, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(c.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.S3RootUser,
			c.S3RootPassword,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("load s3 config: %w", err)
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(c.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return NewS3UploaderWithClient(client, c.S3Bucket, c.S3BaseEndpoint), nil
}

func NewS3UploaderWithClient(client ObjectPutter, bucket, endpoint string) *S3Uploader {
	return &S3Uploader{
		client:   client,
		bucket:   bucket,
		endpoint: strings.TrimRight(endpoint, "/"),
		now:      time.Now,
	}
}

// StorageKey returns a fresh object key under media/YYYY/M/D/ keeping ext.
func StorageKey(t time.Time, ext string) string {
	return fmt.Sprintf("media/%d/%d/%d/%v%s", t.Year(), t.Month(), t.Day(), uuid.New(), strings.ToLower(ext))
}

func (u *S3Uploader) Upload(ctx context.Context, localPath string) (string, error) {
	if localPath == "" {
		return "", fmt.Errorf("%w: file path is empty", common.ErrorValidation)
	}

	f, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat upload: %w", err)
	}

	ext := filepath.Ext(localPath)
	key := StorageKey(u.now(), ext)

	in := &s3.PutObjectInput{
		Bucket:        aws.String(u.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		in.ContentType = aws.String(ct)
	}

	if _, err := u.client.PutObject(ctx, in); err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}

	return fmt.Sprintf("%s/%s/%s", u.endpoint, u.bucket, key), nil
}
