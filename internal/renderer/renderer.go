// Package renderer turns diagram source into an image through a Kroki-style
// HTTP render service and keeps the image in an object store.
package renderer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/GoSim-25-26J-441/uml-studio-backend/internal/projects/domain"
)

const maxImageBytes = 8 << 20

// ErrForeignArtifact is returned by Release for references this store never issued.
var ErrForeignArtifact = errors.New("artifact not owned by this store")

// ObjectStore keeps rendered images and hands out their public URLs.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType string, data []byte) (string, error)
	Delete(ctx context.Context, url string) error
}

// Options configures an HTTPRenderer.
type Options struct {
	// PlantUMLURL and MermaidURL are the render service base URLs; the
	// request goes to {base}/{dialect}/{format}.
	PlantUMLURL string
	MermaidURL  string
	Format      string // svg (default) or png
	Timeout     time.Duration
}

// HTTPRenderer renders through the configured service per dialect and
// stores the output.
type HTTPRenderer struct {
	endpoints map[domain.Dialect]string
	format    string
	http      *http.Client
	store     ObjectStore
	now       func() time.Time
}

func NewHTTPRenderer(opts Options, store ObjectStore) *HTTPRenderer {
	if opts.Format == "" {
		opts.Format = "svg"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MermaidURL == "" {
		opts.MermaidURL = opts.PlantUMLURL
	}
	return &HTTPRenderer{
		endpoints: map[domain.Dialect]string{
			domain.DialectPlantUML: strings.TrimRight(opts.PlantUMLURL, "/"),
			domain.DialectMermaid:  strings.TrimRight(opts.MermaidURL, "/"),
		},
		format: opts.Format,
		http:   &http.Client{Timeout: opts.Timeout},
		store:  store,
		now:    time.Now,
	}
}

func (r *HTTPRenderer) Render(ctx context.Context, source string, dialect domain.Dialect) (string, error) {
	if dialect == "" {
		dialect = domain.DialectPlantUML
	}
	base, ok := r.endpoints[dialect]
	if !ok || base == "" {
		return "", fmt.Errorf("render: no endpoint for dialect %s", dialect)
	}

	url := fmt.Sprintf("%s/%s/%s", base, strings.ToLower(string(dialect)), r.format)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(source))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")

	resp, err := r.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("render %s: %w", dialect, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return "", fmt.Errorf("render read: %w", err)
	}
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("render %s: status %d: %s", dialect, resp.StatusCode, firstLine(body))
	}
	if len(body) == 0 {
		return "", fmt.Errorf("render %s: empty image", dialect)
	}
	if len(body) > maxImageBytes {
		return "", fmt.Errorf("render %s: image exceeds %d bytes", dialect, maxImageBytes)
	}

	ref, err := r.store.Put(ctx, r.objectKey(), r.contentType(), body)
	if err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}
	return ref, nil
}

// Release deletes a stored image.
func (r *HTTPRenderer) Release(ctx context.Context, ref string) error {
	return r.store.Delete(ctx, ref)
}

func (r *HTTPRenderer) objectKey() string {
	return path.Join("diagrams", r.now().UTC().Format("2006/01"), uuid.NewString()+"."+r.format)
}

func (r *HTTPRenderer) contentType() string {
	if r.format == "png" {
		return "image/png"
	}
	return "image/svg+xml"
}

func firstLine(b []byte) string {
	line, _, _ := bytes.Cut(bytes.TrimSpace(b), []byte("\n"))
	if len(line) > 200 {
		line = line[:200]
	}
	return string(line)
}

// keyFromURL strips base from url, rejecting URLs issued elsewhere.
func keyFromURL(base, url string) (string, error) {
	prefix := strings.TrimRight(base, "/") + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", fmt.Errorf("%w: %s", ErrForeignArtifact, url)
	}
	key := strings.TrimPrefix(url, prefix)
	if key == "" || strings.Contains(key, "..") {
		return "", fmt.Errorf("%w: %s", ErrForeignArtifact, url)
	}
	return key, nil
}
