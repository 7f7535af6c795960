package evidence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/de-tools/cloud-sentry/pkg/models/domain"
)

type s3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store keeps evidence blobs in one S3 bucket under evidence/ keys,
// encrypted at rest. The bucket is expected to deny overwrites via policy;
// this store never issues a Put against an existing key.
func NewS3Store(client *s3.Client, bucket string) (Store, error) {
	if client == nil {
		return nil, fmt.Errorf("s3 client is nil")
	}
	if bucket == "" {
		return nil, fmt.Errorf("evidence bucket is required")
	}
	return &s3Store{client: client, bucket: bucket}, nil
}

func (s *s3Store) Put(ctx context.Context, blob []byte) (string, error) {
	ref := fmt.Sprintf("evidence/%s.json", uuid.NewString())

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:               awssdk.String(s.bucket),
		Key:                  awssdk.String(ref),
		Body:                 bytes.NewReader(blob),
		ContentType:          awssdk.String("application/json"),
		ServerSideEncryption: s3types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return "", &domain.PersistenceError{Op: "evidence.Put", Err: err}
	}
	return ref, nil
}

func (s *s3Store) Get(ctx context.Context, ref string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: awssdk.String(s.bucket),
		Key:    awssdk.String(ref),
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NoSuchKey" {
			return nil, fmt.Errorf("evidence %s: %w", ref, domain.ErrNotFound)
		}
		return nil, &domain.PersistenceError{Op: "evidence.Get", Err: err}
	}
	defer out.Body.Close()

	blob, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "evidence.Get", Err: err}
	}
	return blob, nil
}
