package renderer

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/projects/domain"
)

func newRenderServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		switch {
		case strings.Contains(string(body), "syntax error"):
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("Error 400: Syntax Error? (line 2)\nmore detail"))
		case r.URL.Path == "/plantuml/svg", r.URL.Path == "/mermaid/svg":
			w.Header().Set("Content-Type", "image/svg+xml")
			_, _ = w.Write([]byte("<svg><!-- " + r.URL.Path + " --></svg>"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPRenderer_RenderAndRelease(t *testing.T) {
	srv := newRenderServer(t)
	dir := t.TempDir()
	store, err := NewLocalObjectStore(dir, "/uploads/diagrams")
	require.NoError(t, err)

	r := NewHTTPRenderer(Options{PlantUMLURL: srv.URL, Timeout: 5 * time.Second}, store)
	r.now = func() time.Time { return time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC) }
	ctx := context.Background()

	for _, dialect := range []domain.Dialect{domain.DialectPlantUML, domain.DialectMermaid, ""} {
		ref, err := r.Render(ctx, "@startuml\nclass A\n@enduml", dialect)
		require.NoError(t, err)
		assert.Regexp(t, `^/uploads/diagrams/diagrams/2026/03/[0-9a-f-]{36}\.svg$`, ref)

		key := strings.TrimPrefix(ref, "/uploads/diagrams/")
		data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
		require.NoError(t, err)
		assert.Contains(t, string(data), "<svg>")

		require.NoError(t, r.Release(ctx, ref))
		_, err = os.Stat(filepath.Join(dir, filepath.FromSlash(key)))
		assert.True(t, os.IsNotExist(err))
	}
}

func TestLocalObjectStore_Path(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalObjectStore(dir, "/uploads/diagrams/")
	require.NoError(t, err)

	url, err := store.Put(context.Background(), "diagrams/a.svg", "image/svg+xml", []byte("<svg/>"))
	require.NoError(t, err)

	path, err := store.Path(url)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "diagrams", "a.svg"), path)

	for _, foreign := range []string{"https://cdn.test/a.svg", "/uploads/diagrams/../secret"} {
		_, err = store.Path(foreign)
		assert.ErrorIs(t, err, ErrForeignArtifact, foreign)
	}
}

func TestHTTPRenderer_Failures(t *testing.T) {
	srv := newRenderServer(t)
	store, err := NewLocalObjectStore(t.TempDir(), "/uploads/diagrams")
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("render service rejects source", func(t *testing.T) {
		r := NewHTTPRenderer(Options{PlantUMLURL: srv.URL}, store)
		_, err := r.Render(ctx, "syntax error", domain.DialectPlantUML)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "status 400")
		assert.NotContains(t, err.Error(), "more detail")
	})

	t.Run("render service down", func(t *testing.T) {
		r := NewHTTPRenderer(Options{PlantUMLURL: "http://127.0.0.1:1", Timeout: time.Second}, store)
		_, err := r.Render(ctx, "@startuml\n@enduml", domain.DialectPlantUML)
		assert.Error(t, err)
	})

	t.Run("unknown dialect", func(t *testing.T) {
		r := NewHTTPRenderer(Options{PlantUMLURL: srv.URL}, store)
		_, err := r.Render(ctx, "x", "GRAPHVIZ")
		assert.Error(t, err)
	})

	t.Run("release of foreign url", func(t *testing.T) {
		r := NewHTTPRenderer(Options{PlantUMLURL: srv.URL}, store)
		err := r.Release(ctx, "https://elsewhere.test/x.svg")
		assert.True(t, errors.Is(err, ErrForeignArtifact))
		err = r.Release(ctx, "/uploads/diagrams/../secrets")
		assert.True(t, errors.Is(err, ErrForeignArtifact))
	})
}

func TestHTTPRenderer_PNG(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		_, _ = w.Write([]byte{0x89, 'P', 'N', 'G'})
	}))
	defer srv.Close()
	store, err := NewLocalObjectStore(t.TempDir(), "http://cdn.test/img/")
	require.NoError(t, err)

	r := NewHTTPRenderer(Options{PlantUMLURL: "http://unused", MermaidURL: srv.URL, Format: "png"}, store)
	ref, err := r.Render(context.Background(), "graph TD; A-->B", domain.DialectMermaid)
	require.NoError(t, err)
	assert.Equal(t, "/mermaid/png", path)
	assert.True(t, strings.HasPrefix(ref, "http://cdn.test/img/diagrams/"))
	assert.True(t, strings.HasSuffix(ref, ".png"))
	assert.Equal(t, "image/png", r.contentType())
}
