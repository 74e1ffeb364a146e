// Package storage implements the IDP core's object store on top of an
// S3-compatible bucket (AWS S3, MinIO, or similar), via S3Client (see
// s3_interface.go) for testability against s3_mock.go.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// ObjectInfo is the subset of object metadata callers need after a Stat.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// S3Store implements the IDP object store against an S3-compatible bucket.
// Uploaded documents and page renders are addressed by date-partitioned
// keys built with BuildObjectKey, never by caller-chosen paths.
type S3Store struct {
	client  S3Client
	bucket  string
	presign PresignClient
}

// PresignClient abstracts the piece of the AWS SDK's s3.PresignClient used
// for PresignGET, so S3Store stays constructible against a fake in tests
// without a live presigner. github.com/aws/aws-sdk-go-v2/service/s3's
// *PresignClient (from s3.NewPresignClient) satisfies this directly.
type PresignClient interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// NewS3Store constructs a store bound to bucket. presign may be nil, in
// which case PresignGET returns an error — acceptable for workers that
// never hand out download links (only the push/audit surfaces do).
func NewS3Store(client S3Client, bucket string, presign PresignClient) *S3Store {
	return &S3Store{client: client, bucket: bucket, presign: presign}
}

// BuildObjectKey builds the date-partitioned key
// "YYYY/MM/DD/{job_id}/{filename}" for an uploaded document, using uploadedAt
// (typically time.Now().UTC()) to partition by calendar day.
func BuildObjectKey(uploadedAt time.Time, jobID, filename string) string {
	return fmt.Sprintf("%04d/%02d/%02d/%s/%s",
		uploadedAt.Year(), uploadedAt.Month(), uploadedAt.Day(), jobID, filename)
}

// Put uploads r's contents under key.
func (s *S3Store) Put(ctx context.Context, key string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read upload body: %w", err)
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return fmt.Errorf("put object %s: %w", key, err)
	}
	return nil
}

// Get returns the full contents of key.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
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

// GetToFile streams key's contents to localPath, for OCR backends that
// need a filesystem path rather than an in-memory buffer.
func (s *S3Store) GetToFile(ctx context.Context, key, localPath string) error {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("get object %s: %w", key, err)
	}
	defer out.Body.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("create local file %s: %w", localPath, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, out.Body); err != nil {
		return fmt.Errorf("write local file %s: %w", localPath, err)
	}
	return nil
}

// Delete is intentionally unimplemented at the application level: source
// documents and extracted data are retained for the audit trail's full
// lifetime, and expiry is handled by a bucket lifecycle rule, not a code
// path callers can trigger. S3Client carries no DeleteObject method for
// the same reason.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	return fmt.Errorf("delete not supported: object retention is policy-managed for %s", key)
}

// Exists reports whether key is present.
func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nf *types.NoSuchKey
		if asNoSuchKey(err, &nf) {
			return false, nil
		}
		return false, fmt.Errorf("head object %s: %w", key, err)
	}
	return true, nil
}

// Stat returns size/content-type/last-modified metadata for key.
func (s *S3Store) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("head object %s: %w", key, err)
	}

	info := ObjectInfo{Key: key}
	if out.ContentLength != nil {
		info.Size = *out.ContentLength
	}
	if out.ContentType != nil {
		info.ContentType = *out.ContentType
	}
	if out.LastModified != nil {
		info.LastModified = *out.LastModified
	}
	return info, nil
}

// PresignGET returns a time-limited download URL for key, used by the
// audit UI and outbound webhook attachment links.
func (s *S3Store) PresignGET(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if s.presign == nil {
		return "", fmt.Errorf("presign client not configured")
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(o *s3.PresignOptions) { o.Expires = ttl })
	if err != nil {
		return "", fmt.Errorf("presign object %s: %w", key, err)
	}
	return req.URL, nil
}

func asNoSuchKey(err error, target **types.NoSuchKey) bool {
	nf, ok := err.(*types.NoSuchKey)
	if ok {
		*target = nf
		return true
	}
	return false
}
