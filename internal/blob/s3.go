package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/courtdata/fastbreak/pkg/config"
)

// S3Store backs the pipeline with one S3 bucket. Conditional writes map
// onto S3's If-None-Match and If-Match support, so the coordination
// semantics are identical to the in-process backend.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3 builds the S3 backend from config. A custom endpoint switches on
// path-style addressing setups such as MinIO or localstack.
func NewS3(ctx context.Context, cfg *config.Config) (*S3Store, error) {
	if cfg.Store.Bucket == "" {
		return nil, fmt.Errorf("store bucket is required")
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Store.Region),
	}
	if cfg.Store.AccessKeyID != "" {
		creds := credentials.NewStaticCredentialsProvider(cfg.Store.AccessKeyID, cfg.Store.SecretAccessKey, "")
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(creds))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(options *s3.Options) {
		if cfg.Store.Endpoint != "" {
			options.BaseEndpoint = aws.String(cfg.Store.Endpoint)
		}
		if cfg.Store.UsePathStyle {
			options.UsePathStyle = true
		}
	})

	return &S3Store{client: client, bucket: cfg.Store.Bucket}, nil
}

// NewS3WithClient wires an existing client, for tests against fakes.
func NewS3WithClient(client *s3.Client, bucket string) *S3Store {
	return &S3Store{client: client, bucket: bucket}
}

func (s *S3Store) Put(ctx context.Context, key string, body []byte) (ObjectInfo, error) {
	out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("put %s: %w", key, err)
	}
	return ObjectInfo{Key: key, ETag: aws.ToString(out.ETag), Size: int64(len(body))}, nil
}

func (s *S3Store) PutIfAbsent(ctx context.Context, key string, body []byte) (ObjectInfo, error) {
	out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		if isPreconditionFailed(err) {
			return ObjectInfo{}, ErrPreconditionFailed
		}
		return ObjectInfo{}, fmt.Errorf("put-if-absent %s: %w", key, err)
	}
	return ObjectInfo{Key: key, ETag: aws.ToString(out.ETag), Size: int64(len(body))}, nil
}

func (s *S3Store) PutIfMatch(ctx context.Context, key string, body []byte, etag string) (ObjectInfo, error) {
	out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
		IfMatch:     aws.String(etag),
	})
	if err != nil {
		if isNotFound(err) {
			return ObjectInfo{}, ErrNotFound
		}
		if isPreconditionFailed(err) {
			return ObjectInfo{}, ErrPreconditionFailed
		}
		return ObjectInfo{}, fmt.Errorf("put-if-match %s: %w", key, err)
	}
	return ObjectInfo{Key: key, ETag: aws.ToString(out.ETag), Size: int64(len(body))}, nil
}

func (s *S3Store) Get(ctx context.Context, key string) (Object, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return Object{}, ErrNotFound
		}
		return Object{}, fmt.Errorf("get %s: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return Object{}, fmt.Errorf("read %s: %w", key, err)
	}

	info := ObjectInfo{
		Key:  key,
		ETag: aws.ToString(out.ETag),
		Size: int64(len(body)),
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return Object{ObjectInfo: info, Body: body}, nil
}

func (s *S3Store) Head(ctx context.Context, key string) (ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return ObjectInfo{}, ErrNotFound
		}
		return ObjectInfo{}, fmt.Errorf("head %s: %w", key, err)
	}

	info := ObjectInfo{
		Key:  key,
		ETag: aws.ToString(out.ETag),
		Size: aws.ToInt64(out.ContentLength),
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return info, nil
}

func (s *S3Store) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var infos []ObjectInfo

	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			info := ObjectInfo{
				Key:  aws.ToString(obj.Key),
				ETag: aws.ToString(obj.ETag),
				Size: aws.ToInt64(obj.Size),
			}
			if obj.LastModified != nil {
				info.LastModified = *obj.LastModified
			}
			infos = append(infos, info)
		}
	}
	return infos, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var noSuchKey *s3types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var notFound *s3types.NotFound
	if errors.As(err, &notFound) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NoSuchKey" || code == "NotFound"
	}
	return false
}

func isPreconditionFailed(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		// ConditionalRequestConflict surfaces when concurrent
		// conditional writes race on the same key.
		return code == "PreconditionFailed" || code == "ConditionalRequestConflict"
	}
	return false
}
