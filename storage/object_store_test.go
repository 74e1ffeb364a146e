package storage

import (
	"context"
	"strings"
	"testing"
	"time"

	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePresignClient struct {
	url string
	err error
}

func (f *fakePresignClient) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &v4.PresignedHTTPRequest{URL: f.url}, nil
}

func TestBuildObjectKey(t *testing.T) {
	ts := time.Date(2026, 3, 5, 10, 0, 0, 0, time.UTC)
	key := BuildObjectKey(ts, "job-123", "invoice.pdf")
	assert.Equal(t, "2026/03/05/job-123/invoice.pdf", key)
}

func TestS3Store_PutAndGet(t *testing.T) {
	client := NewMockS3Client()
	store := NewS3Store(client, "idp-documents", nil)

	key := BuildObjectKey(time.Now().UTC(), "job-1", "doc.pdf")
	require.NoError(t, store.Put(context.Background(), key, strings.NewReader("hello world")))

	data, err := store.Get(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
}

func TestS3Store_Exists(t *testing.T) {
	client := NewMockS3Client()
	store := NewS3Store(client, "idp-documents", nil)

	key := "2026/01/01/job-2/a.pdf"
	ok, err := store.Exists(context.Background(), key)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, store.Put(context.Background(), key, strings.NewReader("x")))
	ok, err = store.Exists(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestS3Store_Stat(t *testing.T) {
	client := NewMockS3Client()
	store := NewS3Store(client, "idp-documents", nil)

	key := "2026/01/01/job-3/a.pdf"
	require.NoError(t, store.Put(context.Background(), key, strings.NewReader("1234567890")))

	info, err := store.Stat(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, int64(10), info.Size)
}

func TestS3Store_PresignGET(t *testing.T) {
	client := NewMockS3Client()
	store := NewS3Store(client, "idp-documents", &fakePresignClient{url: "https://example.com/signed"})

	url, err := store.PresignGET(context.Background(), "some/key", 15*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/signed", url)
}

func TestS3Store_PresignGET_NoPresignerConfigured(t *testing.T) {
	client := NewMockS3Client()
	store := NewS3Store(client, "idp-documents", nil)

	_, err := store.PresignGET(context.Background(), "some/key", 15*time.Minute)
	assert.Error(t, err)
}

func TestS3Store_Delete_NotSupported(t *testing.T) {
	client := NewMockS3Client()
	store := NewS3Store(client, "idp-documents", nil)

	err := store.Delete(context.Background(), "some/key")
	assert.Error(t, err)
}
