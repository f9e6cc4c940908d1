package renderer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch r.Method {
	case http.MethodPut:
		body, _ := io.ReadAll(r.Body)
		f.objects[r.URL.Path] = body
		f.types[r.URL.Path] = r.Header.Get("Content-Type")
		w.Header().Set("ETag", `"etag"`)
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		delete(f.objects, r.URL.Path)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func TestS3ObjectStore(t *testing.T) {
	fake := &fakeS3{objects: map[string][]byte{}, types: map[string]string{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := aws.Config{
		Region:      "us-east-1",
		Credentials: credentials.NewStaticCredentialsProvider("AKID", "SECRET", ""),
	}
	store := NewS3ObjectStoreWithConfig(cfg, S3Options{Bucket: "diagrams-bucket", Endpoint: srv.URL})
	ctx := context.Background()

	url, err := store.Put(ctx, "diagrams/2026/03/a.svg", "image/svg+xml", []byte("<svg/>"))
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/diagrams-bucket/diagrams/2026/03/a.svg", url)

	fake.mu.Lock()
	assert.Equal(t, []byte("<svg/>"), fake.objects["/diagrams-bucket/diagrams/2026/03/a.svg"])
	assert.Equal(t, "image/svg+xml", fake.types["/diagrams-bucket/diagrams/2026/03/a.svg"])
	fake.mu.Unlock()

	require.NoError(t, store.Delete(ctx, url))
	fake.mu.Lock()
	assert.Empty(t, fake.objects)
	fake.mu.Unlock()

	assert.ErrorIs(t, store.Delete(ctx, "https://other.test/x.svg"), ErrForeignArtifact)
}

func TestS3ObjectStore_PublicBaseURL(t *testing.T) {
	cfg := aws.Config{Region: "eu-west-1"}

	s := NewS3ObjectStoreWithConfig(cfg, S3Options{Bucket: "b"})
	assert.Equal(t, "https://b.s3.eu-west-1.amazonaws.com", s.baseURL)

	s = NewS3ObjectStoreWithConfig(cfg, S3Options{Bucket: "b", PublicBaseURL: "https://cdn.test/"})
	assert.Equal(t, "https://cdn.test", s.baseURL)
}
