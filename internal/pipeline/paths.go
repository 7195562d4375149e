package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/flthibaud/rapidimg/internal/domain"
)

// Resolver derives output paths and creates their directories. Outputs
// mirror the input argument relative to its own parent: items of a
// directory walk land in root/<dir name>/, a single file lands in root/.
// Without a root, outputs are written next to their input.
type Resolver struct {
	root    string
	ensured map[string]struct{}
}

func NewResolver(outputRoot string) *Resolver {
	return &Resolver{
		root:    strings.TrimSpace(outputRoot),
		ensured: make(map[string]struct{}),
	}
}

// Dir returns the destination directory of item without creating it.
func (r *Resolver) Dir(item domain.WorkItem) string {
	parent := filepath.Dir(item.Path)
	if r.root == "" {
		return parent
	}
	if !item.Batch {
		return r.root
	}

	if abs, err := filepath.Abs(parent); err == nil {
		parent = abs
	}
	name := filepath.Base(parent)
	if name == string(filepath.Separator) || name == "." {
		return r.root
	}
	return filepath.Join(r.root, name)
}

// Resolve returns the output path of item for op and makes sure its
// directory exists.
func (r *Resolver) Resolve(item domain.WorkItem, op domain.Operation) (string, error) {
	dir := r.Dir(item)
	if err := r.ensureDir(dir); err != nil {
		return "", err
	}

	out := filepath.Join(dir, OutputName(item.Path, op))
	if samePath(out, item.Path) {
		return "", fmt.Errorf("%w: output %s would overwrite its input", domain.ErrPath, out)
	}
	return out, nil
}

func (r *Resolver) ensureDir(dir string) error {
	if _, ok := r.ensured[dir]; ok {
		return nil
	}

	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		return fmt.Errorf("%w: %s exists and is not a directory", domain.ErrPath, dir)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("%w: create output dir %s: %w", domain.ErrPath, dir, err)
	}

	r.ensured[dir] = struct{}{}
	return nil
}

// OutputName applies the naming convention of op to the base name of input.
//
//	resize:   <stem>_resized.<ext>
//	compress: <stem>_compressed.<ext>
//	convert:  <stem>.webp
func OutputName(input string, op domain.Operation) string {
	base := filepath.Base(input)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if stem == "" {
		stem, ext = base, ""
	}

	switch op {
	case domain.OperationResize:
		return stem + "_resized" + ext
	case domain.OperationConvert:
		return stem + ".webp"
	default:
		return stem + "_compressed" + ext
	}
}

func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	if errA != nil || errB != nil {
		return filepath.Clean(a) == filepath.Clean(b)
	}
	return absA == absB
}
