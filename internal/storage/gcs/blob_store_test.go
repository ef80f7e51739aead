package gcs

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

type fakeGCS struct {
	mu     sync.Mutex
	bodies []string
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.bodies = append(f.bodies, string(body))
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"bucket":"archive","name":"battles/run.csv.gz","size":"9"}`))
}

func newTestClient(t *testing.T, h http.Handler) *storage.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
		option.WithHTTPClient(srv.Client()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestPutObjectUploads(t *testing.T) {
	t.Parallel()

	fake := &fakeGCS{}
	store, err := New(newTestClient(t, fake), Config{
		Bucket:   "archive",
		Metadata: map[string]string{"run_id": "r1"},
	})
	require.NoError(t, err)

	uri, err := store.PutObject(context.Background(), "battles/run.csv.gz", "application/gzip", bytes.NewReader([]byte("gzip-body")))
	require.NoError(t, err)
	require.Equal(t, "gs://archive/battles/run.csv.gz", uri)

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.NotEmpty(t, fake.bodies)
	last := fake.bodies[len(fake.bodies)-1]
	require.True(t, strings.Contains(last, "gzip-body"), "upload body should carry the archive")
	require.True(t, strings.Contains(last, "run_id"), "upload should carry metadata")
}

func TestNewValidates(t *testing.T) {
	t.Parallel()

	_, err := New(nil, Config{Bucket: "archive"})
	require.Error(t, err)

	_, err = New(newTestClient(t, &fakeGCS{}), Config{})
	require.Error(t, err)
}

func TestPutObjectRequiresPath(t *testing.T) {
	t.Parallel()

	store, err := New(newTestClient(t, &fakeGCS{}), Config{Bucket: "archive"})
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), " ", "", bytes.NewReader(nil))
	require.Error(t, err)
}
