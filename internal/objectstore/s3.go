// Package objectstore wraps the S3 buckets holding mirrored source files
// and finished forcing products, including Glacier restore handling.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/waterinstitute/metget/internal/log"
)

// S3API is the slice of the S3 client the store uses.
type S3API interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, opts ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	RestoreObject(ctx context.Context, in *s3.RestoreObjectInput, opts ...func(*s3.Options)) (*s3.RestoreObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, opts ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// ArchiveState describes where an object sits relative to Glacier.
type ArchiveState int

const (
	// StateAvailable objects can be fetched immediately.
	StateAvailable ArchiveState = iota
	// StateRestoring objects have a restore in flight.
	StateRestoring
	// StateArchived objects are in Glacier with no restore started.
	StateArchived
)

func (s ArchiveState) String() string {
	switch s {
	case StateAvailable:
		return "available"
	case StateRestoring:
		return "restoring"
	case StateArchived:
		return "archived"
	}
	return "unknown"
}

// Store is a bucket-scoped S3 client.
type Store struct {
	api    S3API
	bucket string
}

// NewStore opens a client against one bucket. Static credentials are used
// when provided; otherwise the SDK default chain applies.
func NewStore(ctx context.Context, bucket, region, accessKey, secretKey string) (*Store, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	if accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}
	return &Store{api: s3.NewFromConfig(cfg), bucket: bucket}, nil
}

// NewStoreWithAPI wires an existing client, used by tests.
func NewStoreWithAPI(api S3API, bucket string) *Store {
	return &Store{api: api, bucket: bucket}
}

// Bucket returns the bucket this store operates on.
func (s *Store) Bucket() string { return s.bucket }

// API exposes the underlying client so upstream-bucket subsetters can
// share it.
func (s *Store) API() S3API { return s.api }

// Download fetches an object into the temp directory. The local name is
// prefixed with the service and file time so concurrent requests for
// different snapshots of the same product do not collide.
func (s *Store) Download(ctx context.Context, key, service string, fileTime time.Time) (string, error) {
	name := filepath.Base(key)
	if !fileTime.IsZero() {
		name = fmt.Sprintf("%s.%s.%s", service, fileTime.Format("200601021504"), name)
	}
	local := filepath.Join(os.TempDir(), name)

	log.Infof("downloading s3://%s/%s to %s", s.bucket, key, local)
	out, err := s.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", fmt.Errorf("fetching s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()

	f, err := os.Create(local)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(f, out.Body); err != nil {
		f.Close()
		os.Remove(local)
		return "", fmt.Errorf("writing %s: %w", local, err)
	}
	return local, f.Close()
}

// Upload stores a local file under the given key.
func (s *Store) Upload(ctx context.Context, localPath, key string) error {
	f, err := os.Open(localPath)
	if err != nil {
		return err
	}
	defer f.Close()

	log.Infof("uploading %s to s3://%s/%s", localPath, s.bucket, key)
	_, err = s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   f,
	})
	if err != nil {
		return fmt.Errorf("uploading to s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// List returns the keys under a prefix, following pagination.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	var token *string
	for {
		out, err := s.api.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, fmt.Errorf("listing s3://%s/%s: %w", s.bucket, prefix, err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			return keys, nil
		}
		token = out.NextContinuationToken
	}
}

// Exists reports whether the object is present.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.head(ctx, key)
	if err != nil {
		var nf *types.NotFound
		if errors.As(err, &nf) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) head(ctx context.Context, key string) (*s3.HeadObjectOutput, error) {
	return s.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
}

// ArchiveStatus determines whether the object is live, restoring, or
// parked in Glacier.
func (s *Store) ArchiveStatus(ctx context.Context, key string) (ArchiveState, error) {
	out, err := s.head(ctx, key)
	if err != nil {
		return StateAvailable, err
	}

	if out.Restore != nil {
		if strings.Contains(*out.Restore, `ongoing-request="true"`) {
			return StateRestoring, nil
		}
		// A completed restore leaves the header behind with the expiry.
		return StateAvailable, nil
	}

	if out.ArchiveStatus != "" {
		return StateArchived, nil
	}
	switch out.StorageClass {
	case types.StorageClassGlacier, types.StorageClassDeepArchive:
		return StateArchived, nil
	}
	return StateAvailable, nil
}

// InitiateRestore starts a standard tier Glacier restore unless one is
// already running.
func (s *Store) InitiateRestore(ctx context.Context, key string) error {
	state, err := s.ArchiveStatus(ctx, key)
	if err != nil {
		return err
	}
	if state == StateRestoring {
		return nil
	}

	log.Infof("initiating glacier restore for s3://%s/%s", s.bucket, key)
	_, err = s.api.RestoreObject(ctx, &s3.RestoreObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		RestoreRequest: &types.RestoreRequest{
			Days: aws.Int32(7),
			GlacierJobParameters: &types.GlacierJobParameters{
				Tier: types.TierStandard,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("restoring s3://%s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// CheckArchiveInitiateRestore reports the object's archive state, kicking
// off a restore for anything found parked in Glacier.
func (s *Store) CheckArchiveInitiateRestore(ctx context.Context, key string) (ArchiveState, error) {
	state, err := s.ArchiveStatus(ctx, key)
	if err != nil {
		return state, err
	}
	if state == StateArchived {
		if err := s.InitiateRestore(ctx, key); err != nil {
			return state, err
		}
		return StateRestoring, nil
	}
	return state, nil
}
