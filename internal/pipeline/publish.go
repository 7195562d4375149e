package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/flthibaud/rapidimg/internal/domain"
)

type objectWriter interface {
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
}

// ObjectStorePublisher mirrors every written file of an outcome to a bucket
// under <prefix>/<run id>/<output dir name>/<file name>.
type ObjectStorePublisher struct {
	Storage objectWriter
	Prefix  string
	RunID   string
}

func NewObjectStorePublisher(storage objectWriter, prefix, runID string) ObjectStorePublisher {
	return ObjectStorePublisher{Storage: storage, Prefix: prefix, RunID: runID}
}

func (p ObjectStorePublisher) Publish(ctx context.Context, outcome domain.Outcome) error {
	if p.Storage == nil {
		return errors.New("storage client is required")
	}

	for _, file := range []string{outcome.ResizedPath, outcome.OutputPath} {
		if file == "" {
			continue
		}
		data, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("%w: read %s for upload: %w", domain.ErrIO, file, err)
		}
		key := p.ObjectKey(file)
		if err := p.Storage.WriteObject(ctx, key, data, contentTypeForPath(file)); err != nil {
			return fmt.Errorf("%w: upload %s: %w", domain.ErrIO, key, err)
		}
	}
	return nil
}

func (p ObjectStorePublisher) ObjectKey(file string) string {
	return path.Join(
		defaultOutputPrefix(p.Prefix),
		sanitizePathToken(p.RunID),
		sanitizePathToken(filepath.Base(filepath.Dir(file))),
		filepath.Base(file),
	)
}

func defaultOutputPrefix(prefix string) string {
	prefix = strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "" {
		return "outputs"
	}
	return prefix
}

func contentTypeForPath(file string) string {
	switch strings.ToLower(filepath.Ext(file)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	case ".png":
		return "image/png"
	default:
		return "application/octet-stream"
	}
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" || in == "." || in == string(filepath.Separator) {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
