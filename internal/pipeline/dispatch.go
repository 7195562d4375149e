package pipeline

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"

	"github.com/flthibaud/rapidimg/internal/codec"
	"github.com/flthibaud/rapidimg/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TransformJob is the input of one dispatch.
type TransformJob struct {
	Bitmap image.Image
	// SourcePath is the original input; its size on disk is the stats baseline.
	SourcePath string
	// OptimizeFrom is the PNG file that lossless optimization reads.
	// Empty means SourcePath.
	OptimizeFrom string
	OutputPath   string
	Format       domain.ImageFormat
	Mode         domain.Mode
}

// Dispatcher picks the encoder for a format and mode and writes the result.
type Dispatcher struct {
	codec       codec.Codec
	jpegQuality int
	webpQuality float32
	tracer      trace.Tracer
}

// NewDispatcher normalizes both qualities: an out-of-range JPEG quality
// becomes the default, a WebP quality is clamped into 0..100.
func NewDispatcher(c codec.Codec, jpegQuality int, webpQuality float32) *Dispatcher {
	jpegQuality, _ = domain.NormalizeJPEGQuality(jpegQuality)
	webpQuality, _ = domain.ClampWebPQuality(webpQuality)
	return &Dispatcher{
		codec:       c,
		jpegQuality: jpegQuality,
		webpQuality: webpQuality,
		tracer:      otel.Tracer(tracerName),
	}
}

func (d *Dispatcher) JPEGQuality() int {
	return d.jpegQuality
}

func (d *Dispatcher) WebPQuality() float32 {
	return d.webpQuality
}

// OperationFor maps a format and mode to the output naming operation. A
// WebP source in convert mode is re-encoded under the compress name so the
// output never replaces the input.
func OperationFor(format domain.ImageFormat, mode domain.Mode) domain.Operation {
	if mode == domain.ModeConvertToWebP && format != domain.FormatWebP {
		return domain.OperationConvert
	}
	return domain.OperationCompress
}

func (d *Dispatcher) Transform(ctx context.Context, job TransformJob) domain.Outcome {
	op := OperationFor(job.Format, job.Mode)

	_, span := d.tracer.Start(ctx, "pipeline.transform", trace.WithAttributes(
		attribute.String("image.format", job.Format.String()),
		attribute.String("image.operation", op.String()),
	))
	defer span.End()

	out := d.transform(job, op)
	out.Format = job.Format
	out.Operation = op
	if out.Err != nil {
		span.RecordError(out.Err)
	}
	return out
}

func (d *Dispatcher) transform(job TransformJob, op domain.Operation) domain.Outcome {
	switch job.Format {
	case domain.FormatJPEG, domain.FormatPNG, domain.FormatWebP:
	default:
		return domain.Failed(job.SourcePath, fmt.Errorf("%w: %s", domain.ErrUnsupportedFormat, job.SourcePath))
	}

	// Encode first: a PNG optimizer that cannot read its source is a codec
	// failure, not an io one.
	data, err := d.encode(job, op)
	if err != nil {
		return domain.Failed(job.SourcePath, err)
	}

	sourceInfo, err := os.Stat(job.SourcePath)
	if err != nil {
		return domain.Failed(job.SourcePath, fmt.Errorf("%w: stat source: %w", domain.ErrIO, err))
	}

	if err := writeFileAtomic(job.OutputPath, data); err != nil {
		return domain.Failed(job.SourcePath, err)
	}

	outputInfo, err := os.Stat(job.OutputPath)
	if err != nil {
		return domain.Failed(job.SourcePath, fmt.Errorf("%w: stat output: %w", domain.ErrIO, err))
	}

	out := domain.Succeeded(job.SourcePath, job.OutputPath, nil)
	if stats, err := domain.NewCompressionStats(uint64(sourceInfo.Size()), uint64(outputInfo.Size())); err == nil {
		out.Stats = &stats
	}
	return out
}

func (d *Dispatcher) encode(job TransformJob, op domain.Operation) ([]byte, error) {
	if op == domain.OperationConvert {
		return d.codec.EncodeWebP(job.Bitmap, d.webpQuality)
	}

	switch job.Format {
	case domain.FormatJPEG:
		return d.codec.EncodeJPEG(job.Bitmap, d.jpegQuality)
	case domain.FormatPNG:
		src := job.OptimizeFrom
		if src == "" {
			src = job.SourcePath
		}
		return d.codec.OptimizePNG(src)
	default:
		return d.codec.EncodeWebP(job.Bitmap, d.webpQuality)
	}
}

// EncodeSame encodes img in format with the configured qualities. Resize
// artifacts use it to keep their source format.
func (d *Dispatcher) EncodeSame(img image.Image, format domain.ImageFormat) ([]byte, error) {
	switch format {
	case domain.FormatJPEG:
		return d.codec.EncodeJPEG(img, d.jpegQuality)
	case domain.FormatPNG:
		return d.codec.EncodePNG(img)
	case domain.FormatWebP:
		return d.codec.EncodeWebP(img, d.webpQuality)
	default:
		return nil, fmt.Errorf("%w: cannot encode %s", domain.ErrUnsupportedFormat, format)
	}
}

// writeFileAtomic writes data next to path and renames it into place, so a
// failed write never leaves a truncated output behind.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp file for %s: %w", domain.ErrIO, path, err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write %s: %w", domain.ErrIO, path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", domain.ErrIO, path, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("%w: chmod %s: %w", domain.ErrIO, path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("%w: move into place %s: %w", domain.ErrIO, path, err)
	}

	committed = true
	return nil
}
