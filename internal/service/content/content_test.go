package content

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"

	"github.com/nkiryanov/paywall/internal/apperrors"
)

type getObjectFunc func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)

func (f getObjectFunc) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return f(ctx, params, optFns...)
}

func TestStore_Get(t *testing.T) {
	t.Run("get ok", func(t *testing.T) {
		var gotInput *s3.GetObjectInput
		store := NewWithClient(getObjectFunc(func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			gotInput = params
			return &s3.GetObjectOutput{
				Body:        io.NopCloser(strings.NewReader("<p>premium</p>")),
				ContentType: aws.String("text/html"),
			}, nil
		}), "premium", "")

		article, err := store.Get(t.Context(), "go-basics")

		require.NoError(t, err)
		require.Equal(t, "premium", aws.ToString(gotInput.Bucket))
		require.Equal(t, "articles/go-basics.html", aws.ToString(gotInput.Key))
		require.Equal(t, "go-basics", article.Slug)
		require.Equal(t, "text/html", article.ContentType)
		require.Equal(t, "<p>premium</p>", string(article.Body))
	})

	t.Run("default content type", func(t *testing.T) {
		store := NewWithClient(getObjectFunc(func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader("body"))}, nil
		}), "premium", "posts")

		article, err := store.Get(t.Context(), "go-basics")

		require.NoError(t, err)
		require.Equal(t, "text/html; charset=utf-8", article.ContentType)
	})

	t.Run("no such key", func(t *testing.T) {
		store := NewWithClient(getObjectFunc(func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			return nil, &types.NoSuchKey{}
		}), "premium", "")

		_, err := store.Get(t.Context(), "missing")

		require.ErrorIs(t, err, apperrors.ErrContentNotFound)
	})

	t.Run("storage failure", func(t *testing.T) {
		store := NewWithClient(getObjectFunc(func(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
			return nil, errors.New("connection reset")
		}), "premium", "")

		_, err := store.Get(t.Context(), "go-basics")

		require.Error(t, err)
		require.NotErrorIs(t, err, apperrors.ErrContentNotFound)
	})
}

func TestNew(t *testing.T) {
	t.Run("bucket required", func(t *testing.T) {
		_, err := New(t.Context(), Config{Region: "us-east-1"})

		require.ErrorIs(t, err, apperrors.ErrConfiguration)
	})

	t.Run("static credentials and custom endpoint", func(t *testing.T) {
		store, err := New(t.Context(), Config{
			Bucket:    "premium",
			Region:    "us-east-1",
			Endpoint:  "http://127.0.0.1:9000",
			AccessKey: "minio",
			SecretKey: "minio-secret",
		})

		require.NoError(t, err)
		require.Equal(t, "premium", store.bucket)
		require.IsType(t, &s3.Client{}, store.client)
	})
}
