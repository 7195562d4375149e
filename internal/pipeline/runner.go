// Package pipeline turns a file or a directory of files into compressed or
// converted outputs: enumeration, path resolution, resize and dispatch.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/flthibaud/rapidimg/internal/codec"
	"github.com/flthibaud/rapidimg/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "rapidimg/pipeline"

var (
	ErrInputNotFound = errors.New("input path does not exist")
	ErrOutputRoot    = errors.New("output root is not usable")
)

// Reporter receives every outcome as soon as its item is done.
type Reporter interface {
	Report(outcome domain.Outcome)
}

type ReporterFunc func(outcome domain.Outcome)

func (f ReporterFunc) Report(outcome domain.Outcome) {
	f(outcome)
}

// Publisher copies finished outputs somewhere else after they are written.
type Publisher interface {
	Publish(ctx context.Context, outcome domain.Outcome) error
}

type Runner struct {
	logger    *log.Logger
	codec     codec.Codec
	reporter  Reporter
	publisher Publisher
	tracer    trace.Tracer
}

type Option func(*Runner)

func WithPublisher(p Publisher) Option {
	return func(r *Runner) {
		r.publisher = p
	}
}

func NewRunner(logger *log.Logger, c codec.Codec, reporter Reporter, opts ...Option) *Runner {
	if reporter == nil {
		reporter = ReporterFunc(func(domain.Outcome) {})
	}
	r := &Runner{
		logger:   logger,
		codec:    c,
		reporter: reporter,
		tracer:   otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run processes every item of req one at a time. Item failures are
// reported and never stop the run; the returned error is reserved for
// problems detected before the first item and for cancellation between
// items.
func (r *Runner) Run(ctx context.Context, req domain.TransformRequest) error {
	if err := req.Validate(); err != nil {
		return err
	}

	info, err := os.Stat(req.InputPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s: %w", ErrInputNotFound, req.InputPath, err)
	case err != nil:
		return fmt.Errorf("%w: stat input %s: %w", domain.ErrIO, req.InputPath, err)
	}
	if err := prepareOutputRoot(req.OutputRoot); err != nil {
		return err
	}

	items := []domain.WorkItem{{Path: req.InputPath}}
	if info.IsDir() {
		items, err = Discover(req.InputPath)
		if err != nil {
			return fmt.Errorf("list input directory: %w", err)
		}
	}

	ctx, span := r.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("run.input", req.InputPath),
		attribute.String("run.mode", req.Mode.String()),
		attribute.Int("run.items", len(items)),
	))
	defer span.End()

	resolver := NewResolver(req.OutputRoot)
	dispatcher := NewDispatcher(r.codec, req.ResolvedJPEGQuality(), req.ResolvedWebPQuality())
	r.logf("processing %d item(s) codec=%s mode=%s jpeg_quality=%d webp_quality=%.1f",
		len(items), r.codec.Name(), req.Mode, dispatcher.JPEGQuality(), dispatcher.WebPQuality())

	for _, item := range items {
		if err := ctx.Err(); err != nil {
			span.SetStatus(codes.Error, "interrupted")
			return fmt.Errorf("run interrupted: %w", err)
		}
		r.reporter.Report(r.processItem(ctx, req, item, resolver, dispatcher))
	}

	span.SetStatus(codes.Ok, "done")
	return nil
}

func prepareOutputRoot(root string) error {
	if root == "" {
		return nil
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrOutputRoot, root, err)
	}
	info, err := os.Stat(root)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrOutputRoot, root, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: %s is not a directory", ErrOutputRoot, root)
	}
	return nil
}

// Discover lists the regular files directly inside dir, following
// symlinks. Subdirectories are not entered. The order is whatever the
// filesystem returns and differs between platforms.
func Discover(dir string) ([]domain.WorkItem, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	entries, err := f.ReadDir(-1)
	if err != nil {
		return nil, err
	}

	items := make([]domain.WorkItem, 0, len(entries))
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		switch {
		case entry.Type().IsRegular():
		case entry.Type()&fs.ModeSymlink != 0:
			target, err := os.Stat(path)
			if err != nil || !target.Mode().IsRegular() {
				continue
			}
		default:
			continue
		}
		items = append(items, domain.WorkItem{Path: path, Batch: true})
	}
	return items, nil
}

func (r *Runner) processItem(ctx context.Context, req domain.TransformRequest, item domain.WorkItem, resolver *Resolver, dispatcher *Dispatcher) domain.Outcome {
	startedAt := time.Now()

	ctx, span := r.tracer.Start(ctx, "pipeline.item", trace.WithAttributes(
		attribute.String("item.path", item.Path),
	))
	defer span.End()

	out := r.transformItem(ctx, req, item, resolver, dispatcher)
	if out.OK() && r.publisher != nil {
		if err := r.publisher.Publish(ctx, out); err != nil {
			out.Status = domain.OutcomeFailure
			out.Err = err
		}
	}
	out.Duration = time.Since(startedAt)

	if out.OK() {
		span.SetStatus(codes.Ok, "processed")
	} else {
		span.RecordError(out.Err)
		span.SetStatus(codes.Error, domain.FailureKind(out.Err))
	}
	return out
}

func (r *Runner) transformItem(ctx context.Context, req domain.TransformRequest, item domain.WorkItem, resolver *Resolver, dispatcher *Dispatcher) domain.Outcome {
	var (
		format      = domain.FormatUnsupported
		resizedPath string
	)
	fail := func(err error) domain.Outcome {
		out := domain.Failed(item.Path, err)
		out.Format = format
		out.ResizedPath = resizedPath
		return out
	}

	format, err := r.codec.Sniff(item.Path)
	if err != nil {
		return fail(err)
	}
	if format == domain.FormatUnsupported {
		return fail(fmt.Errorf("%w: %s is not jpeg, png or webp", domain.ErrUnsupportedFormat, item.Path))
	}

	img, err := r.codec.Decode(item.Path)
	if err != nil {
		return fail(err)
	}
	bounds := img.Bounds()
	r.logf("%s format=%s dimensions=%dx%d", item.Path, format, bounds.Dx(), bounds.Dy())

	job := TransformJob{
		Bitmap:     img,
		SourcePath: item.Path,
		Format:     format,
		Mode:       req.Mode,
	}

	if req.WantsResize() {
		resized := Resize(img, req.Width, req.Height)
		resizedPath, err = resolver.Resolve(item, domain.OperationResize)
		if err != nil {
			return fail(err)
		}
		data, err := dispatcher.EncodeSame(resized, format)
		if err != nil {
			return fail(err)
		}
		if err := writeFileAtomic(resizedPath, data); err != nil {
			resizedPath = ""
			return fail(err)
		}
		if req.ResizePolicy == domain.ResizeChain {
			job.Bitmap = resized
			job.OptimizeFrom = resizedPath
		}
	}

	job.OutputPath, err = resolver.Resolve(item, OperationFor(format, req.Mode))
	if err != nil {
		return fail(err)
	}

	out := dispatcher.Transform(ctx, job)
	out.ResizedPath = resizedPath
	b := job.Bitmap.Bounds()
	out.Width, out.Height = b.Dx(), b.Dy()
	return out
}

func (r *Runner) logf(format string, args ...any) {
	if r.logger != nil {
		r.logger.Printf(format, args...)
	}
}
