package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"siashare-go/internal/config"
	"siashare-go/internal/share"
)

// S3API is the subset of the S3 client the vault uses.
type S3API interface {
	manager.UploadAPIClient
	s3.HeadObjectAPIClient
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
}

// S3Vault stores objects in an S3-compatible bucket under
// "<prefix>/<roomID>/<tusID>". Large uploads go through the multipart uploader.
type S3Vault struct {
	name     string
	client   S3API
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Vault builds an S3 client from cfg. Static credentials are used when
// both keys are set; otherwise the default AWS credential chain applies.
func NewS3Vault(ctx context.Context, cfg config.VaultConfig) (*S3Vault, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKey != "" && cfg.S3SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.S3Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.S3Endpoint)
		}
		o.UsePathStyle = cfg.S3UsePathStyle
	})
	return NewS3VaultWithClient(cfg.Name, client, cfg.S3Bucket, cfg.S3Prefix), nil
}

// NewS3VaultWithClient wraps an existing client.
func NewS3VaultWithClient(name string, client S3API, bucket, prefix string) *S3Vault {
	return &S3Vault{
		name:     name,
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
	}
}

func (v *S3Vault) key(k string) string {
	if v.prefix == "" {
		return k
	}
	return v.prefix + "/" + k
}

// Put uploads an object, splitting it into parts when it is large.
func (v *S3Vault) Put(ctx context.Context, roomID, tusID string, r io.Reader, size int64) error {
	key, err := objectKey(roomID, tusID)
	if err != nil {
		return err
	}
	_, err = v.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(v.bucket),
		Key:           aws.String(v.key(key)),
		Body:          r,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String("application/octet-stream"),
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", key, err)
	}
	return nil
}

// Stat returns the size of a stored object.
func (v *S3Vault) Stat(ctx context.Context, roomID, tusID string) (int64, error) {
	key, err := objectKey(roomID, tusID)
	if err != nil {
		return 0, err
	}
	out, err := v.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key(key)),
	})
	if err != nil {
		return 0, s3Error(key, err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

// Open issues a ranged GET for [start, end] of an object.
func (v *S3Vault) Open(ctx context.Context, roomID, tusID string, start, end int64) (io.ReadCloser, error) {
	key, err := objectKey(roomID, tusID)
	if err != nil {
		return nil, err
	}
	if end < start {
		return io.NopCloser(bytes.NewReader(nil)), nil
	}
	out, err := v.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(v.bucket),
		Key:    aws.String(v.key(key)),
		Range:  aws.String(fmt.Sprintf("bytes=%d-%d", start, end)),
	})
	if err != nil {
		return nil, s3Error(key, err)
	}
	return out.Body, nil
}

// DeleteRoom lists every object under the room prefix and deletes them in
// batches of up to 1000 keys.
func (v *S3Vault) DeleteRoom(ctx context.Context, roomID string) error {
	prefix, err := roomPrefix(roomID)
	if err != nil {
		return err
	}

	paginator := s3.NewListObjectsV2Paginator(v.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(v.bucket),
		Prefix: aws.String(v.key(prefix)),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("listing room %s: %w", roomID, err)
		}
		if len(page.Contents) == 0 {
			continue
		}

		ids := make([]types.ObjectIdentifier, len(page.Contents))
		for i, obj := range page.Contents {
			ids[i] = types.ObjectIdentifier{Key: obj.Key}
		}
		out, err := v.client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(v.bucket),
			Delete: &types.Delete{Objects: ids, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("deleting room %s: %w", roomID, err)
		}
		if len(out.Errors) > 0 {
			e := out.Errors[0]
			return fmt.Errorf("deleting room %s: %d objects failed, first %s: %s",
				roomID, len(out.Errors), aws.ToString(e.Key), aws.ToString(e.Message))
		}
	}
	return nil
}

// ValidateSetup checks that the bucket exists and is reachable.
func (v *S3Vault) ValidateSetup(ctx context.Context) error {
	if _, err := v.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(v.bucket)}); err != nil {
		return fmt.Errorf("checking bucket %s: %w", v.bucket, err)
	}
	return nil
}

func s3Error(key string, err error) error {
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var respErr *awshttp.ResponseError
	switch {
	case errors.As(err, &notFound), errors.As(err, &noSuchKey):
		return fmt.Errorf("%s: %w", key, share.ErrObjectNotFound)
	case errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound:
		return fmt.Errorf("%s: %w", key, share.ErrObjectNotFound)
	}
	return fmt.Errorf("%s: %w", key, err)
}

// Compile-time check that S3Vault implements share.Vault interface
var _ share.Vault = (*S3Vault)(nil)
