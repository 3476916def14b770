package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/krishkalaria12/pix-stash/config"
)

// S3Storage uploads, downloads and deletes image blobs in a single bucket.
// Keys are namespaced by the owning user so concurrent uploads can never
// collide across accounts.
type S3Storage struct {
	client   *s3.Client
	bucket   string
	region   string
	endpoint string
	log      zerolog.Logger
}

// UploadResult describes a stored blob.
type UploadResult struct {
	Key              string
	URL              string
	OriginalFilename string
	Size             int64
}

func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*S3Storage, error) {
	resolver := aws.EndpointResolverWithOptionsFunc(func(service, region string, options ...interface{}) (aws.Endpoint, error) {
		if cfg.S3Endpoint != "" {
			return aws.Endpoint{
				URL:           cfg.S3Endpoint,
				PartitionID:   "aws",
				SigningRegion: cfg.S3Region,
			}, nil
		}
		return aws.Endpoint{}, &aws.EndpointNotFoundError{}
	})

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AWSAccessKey, cfg.AWSSecretKey, "")),
		awsconfig.WithEndpointResolverWithOptions(resolver),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.S3UsePathStyle
	})

	return &S3Storage{
		client:   client,
		bucket:   cfg.S3Bucket,
		region:   cfg.S3Region,
		endpoint: strings.TrimRight(cfg.S3Endpoint, "/"),
		log:      log.With().Str("component", "s3-storage").Logger(),
	}, nil
}

// Upload streams the file into the bucket under a fresh owner-scoped key and
// returns the key together with its public URL. Nothing is written to the
// database here; callers must not create a record when Upload fails.
func (s *S3Storage) Upload(ctx context.Context, file io.Reader, size int64, contentType, originalName string, ownerID uint) (*UploadResult, error) {
	sanitized := SanitizeFilename(originalName)
	key := s.objectKey(sanitized, ownerID)

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          file,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		return nil, fmt.Errorf("put object %s: %w", key, err)
	}

	s.log.Debug().Str("key", key).Int64("size", size).Msg("uploaded object")

	return &UploadResult{
		Key:              key,
		URL:              s.ObjectURL(key),
		OriginalFilename: sanitized,
		Size:             size,
	}, nil
}

// Delete removes the object. S3 treats deletion of an absent key as success,
// which gives the idempotency the delete route relies on.
func (s *S3Storage) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete object %s: %w", key, err)
	}
	return nil
}

// Download reads an object through the authenticated API, bypassing the
// public URL. Used by the analyzer for blobs in our own bucket.
func (s *S3Storage) Download(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

// ObjectURL builds the deterministic public URL for a key.
func (s *S3Storage) ObjectURL(key string) string {
	if s.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", s.endpoint, s.bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

// IsStorageURL reports whether the URL points into our bucket.
func (s *S3Storage) IsStorageURL(rawURL string) bool {
	if s.endpoint != "" {
		return strings.HasPrefix(rawURL, s.endpoint+"/"+s.bucket+"/")
	}
	return strings.HasPrefix(rawURL, fmt.Sprintf("https://%s.s3.", s.bucket))
}

// KeyFromURL recovers the object key from one of our own URLs.
func (s *S3Storage) KeyFromURL(rawURL string) string {
	trimmed := strings.TrimPrefix(rawURL, "https://")
	trimmed = strings.TrimPrefix(trimmed, "http://")

	i := strings.Index(trimmed, "/")
	if i < 0 {
		return ""
	}
	key := trimmed[i+1:]
	if s.endpoint != "" {
		key = strings.TrimPrefix(key, s.bucket+"/")
	}
	return key
}

// objectKey derives a fresh storage key: {ownerID}/{uuid}.{ext}. The
// extension comes from the sanitized name and is dropped when absent.
func (s *S3Storage) objectKey(sanitized string, ownerID uint) string {
	token := uuid.New().String()
	ext := strings.ToLower(path.Ext(sanitized))
	if ext == "" || ext == "." {
		return fmt.Sprintf("%d/%s", ownerID, token)
	}
	return fmt.Sprintf("%d/%s%s", ownerID, token, ext)
}

// SanitizeFilename strips directory components and anything outside a
// conservative character set, keeping the name safe to echo into headers
// and storage keys. Spaces become underscores.
func SanitizeFilename(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(name)

	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.' || r == '-' || r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}

	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "file"
	}
	return out
}
