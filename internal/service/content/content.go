package content

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/nkiryanov/paywall/internal/apperrors"
)

const (
	defaultPrefix      = "articles"
	defaultContentType = "text/html; charset=utf-8"

	// Premium bodies are small html fragments
	maxBodySize = 10 << 20
)

type Config struct {
	Bucket string
	Region string

	// Custom endpoint (e.g. minio), AWS one if empty
	Endpoint string

	// Static credentials, default AWS chain is used if empty
	AccessKey string
	SecretKey string

	// Key prefix, objects are stored as {prefix}/{slug}.html
	Prefix string
}

type Article struct {
	Slug        string
	ContentType string
	Body        []byte
}

// ObjectGetter is part of *s3.Client used by the store
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Store serves premium article bodies kept in S3 compatible storage
type Store struct {
	client ObjectGetter
	bucket string
	prefix string
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: content bucket must not be empty", apperrors.ErrConfiguration)
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("error while loading aws config. Err: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	return NewWithClient(client, cfg.Bucket, cfg.Prefix), nil
}

func NewWithClient(client ObjectGetter, bucket string, prefix string) *Store {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

// Get returns premium body of the article
// Missing object is apperrors.ErrContentNotFound
func (s *Store) Get(ctx context.Context, slug string) (Article, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(slug)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return Article{}, apperrors.ErrContentNotFound
		}
		return Article{}, fmt.Errorf("error while getting article content. Err: %w", err)
	}
	defer out.Body.Close() // nolint:errcheck

	body, err := io.ReadAll(io.LimitReader(out.Body, maxBodySize))
	if err != nil {
		return Article{}, fmt.Errorf("error while reading article content. Err: %w", err)
	}

	contentType := aws.ToString(out.ContentType)
	if contentType == "" {
		contentType = defaultContentType
	}

	return Article{Slug: slug, ContentType: contentType, Body: body}, nil
}

func (s *Store) key(slug string) string {
	return path.Join(s.prefix, slug+".html")
}
