package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/flthibaud/rapidimg/internal/codec"
	"github.com/flthibaud/rapidimg/internal/domain"
)

func TestRunner_DirectoryBatchIsolatesUnsupportedItem(t *testing.T) {
	tmp := t.TempDir()
	inputDir := filepath.Join(tmp, "b")
	outputRoot := filepath.Join(tmp, "out")
	mustMkdir(t, inputDir)

	writeFixture(t, filepath.Join(inputDir, "photo.jpg"), buildTestJPEG(t, 120, 80))
	writeFixture(t, filepath.Join(inputDir, "icon.png"), buildTestPNG(t, 64, 64))
	writeFixture(t, filepath.Join(inputDir, "readme.txt"), []byte("not an image"))

	reporter := &captureReporter{}
	err := newTestRunner(t, reporter).Run(context.Background(), domain.TransformRequest{
		InputPath:  inputDir,
		OutputRoot: outputRoot,
		Mode:       domain.ModeCompressInPlace,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if len(reporter.outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(reporter.outcomes))
	}

	byName := reporter.byBase()
	unsupported := byName["readme.txt"]
	if unsupported.OK() || !errors.Is(unsupported.Err, domain.ErrUnsupportedFormat) {
		t.Fatalf("expected readme.txt to fail as unsupported, got %+v", unsupported)
	}

	for _, name := range []string{"photo.jpg", "icon.png"} {
		out := byName[name]
		if !out.OK() {
			t.Fatalf("expected %s to succeed, got %v", name, out.Err)
		}
		if filepath.Dir(out.OutputPath) != filepath.Join(outputRoot, "b") {
			t.Fatalf("expected %s output under %s, got %s", name, filepath.Join(outputRoot, "b"), out.OutputPath)
		}
		assertStatsMatchDisk(t, out)
	}

	if got := filepath.Base(byName["photo.jpg"].OutputPath); got != "photo_compressed.jpg" {
		t.Fatalf("expected photo_compressed.jpg, got %s", got)
	}
	if got := filepath.Base(byName["icon.png"].OutputPath); got != "icon_compressed.png" {
		t.Fatalf("expected icon_compressed.png, got %s", got)
	}
}

func TestRunner_SingleFileWritesBesideInput(t *testing.T) {
	tmp := t.TempDir()
	input := filepath.Join(tmp, "photo.jpg")
	writeFixture(t, input, buildTestJPEG(t, 90, 60))

	reporter := &captureReporter{}
	if err := newTestRunner(t, reporter).Run(context.Background(), domain.TransformRequest{InputPath: input}); err != nil {
		t.Fatalf("run: %v", err)
	}

	out := reporter.single(t)
	if !out.OK() {
		t.Fatalf("expected success, got %v", out.Err)
	}
	if want := filepath.Join(tmp, "photo_compressed.jpg"); out.OutputPath != want {
		t.Fatalf("expected %s, got %s", want, out.OutputPath)
	}
	assertStatsMatchDisk(t, out)
}

func TestRunner_SingleFileWithOutputRootIsNotMirrored(t *testing.T) {
	tmp := t.TempDir()
	input := filepath.Join(tmp, "src", "photo.png")
	mustMkdir(t, filepath.Dir(input))
	writeFixture(t, input, buildTestPNG(t, 40, 40))
	outputRoot := filepath.Join(tmp, "out")

	reporter := &captureReporter{}
	err := newTestRunner(t, reporter).Run(context.Background(), domain.TransformRequest{
		InputPath:  input,
		OutputRoot: outputRoot,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	out := reporter.single(t)
	if want := filepath.Join(outputRoot, "photo_compressed.png"); out.OutputPath != want {
		t.Fatalf("expected %s, got %s", want, out.OutputPath)
	}
}

func TestRunner_ConvertToWebP(t *testing.T) {
	tmp := t.TempDir()
	input := filepath.Join(tmp, "photo.png")
	writeFixture(t, input, buildTestPNG(t, 80, 40))

	reporter := &captureReporter{}
	err := newTestRunner(t, reporter).Run(context.Background(), domain.TransformRequest{
		InputPath:   input,
		Mode:        domain.ModeConvertToWebP,
		WebPQuality: domain.WebPQuality(150),
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	out := reporter.single(t)
	if errors.Is(out.Err, codec.ErrWebPUnavailable) {
		t.Skip("webp encoder not available in this build")
	}
	if !out.OK() {
		t.Fatalf("expected success, got %v", out.Err)
	}
	if out.Operation != domain.OperationConvert {
		t.Fatalf("expected convert operation, got %s", out.Operation)
	}
	if want := filepath.Join(tmp, "photo.webp"); out.OutputPath != want {
		t.Fatalf("expected %s, got %s", want, out.OutputPath)
	}
	assertStatsMatchDisk(t, out)
}

func TestRunner_ResizeSeparateKeepsOriginalForCompression(t *testing.T) {
	tmp := t.TempDir()
	input := filepath.Join(tmp, "photo.jpg")
	writeFixture(t, input, buildTestJPEG(t, 200, 100))

	reporter := &captureReporter{}
	err := newTestRunner(t, reporter).Run(context.Background(), domain.TransformRequest{
		InputPath:    input,
		Width:        domain.Dimension(50),
		ResizePolicy: domain.ResizeSeparate,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	out := reporter.single(t)
	if !out.OK() {
		t.Fatalf("expected success, got %v", out.Err)
	}
	if want := filepath.Join(tmp, "photo_resized.jpg"); out.ResizedPath != want {
		t.Fatalf("expected resized artifact %s, got %s", want, out.ResizedPath)
	}
	verifyImageSize(t, out.ResizedPath, 50, 25)
	verifyImageSize(t, out.OutputPath, 200, 100)
}

func TestRunner_ResizeChainCompressesResizedBitmap(t *testing.T) {
	tmp := t.TempDir()
	jpegInput := filepath.Join(tmp, "photo.jpg")
	pngInput := filepath.Join(tmp, "icon.png")
	writeFixture(t, jpegInput, buildTestJPEG(t, 200, 100))
	writeFixture(t, pngInput, buildTestPNG(t, 100, 200))

	for _, input := range []string{jpegInput, pngInput} {
		reporter := &captureReporter{}
		err := newTestRunner(t, reporter).Run(context.Background(), domain.TransformRequest{
			InputPath:    input,
			Height:       domain.Dimension(50),
			ResizePolicy: domain.ResizeChain,
		})
		if err != nil {
			t.Fatalf("run %s: %v", input, err)
		}

		out := reporter.single(t)
		if !out.OK() {
			t.Fatalf("expected success for %s, got %v", input, out.Err)
		}
		verifyImageSize(t, out.ResizedPath, out.Width, 50)
		verifyImageSize(t, out.OutputPath, out.Width, 50)
	}
}

func TestRunner_DecodeFailureDoesNotStopBatch(t *testing.T) {
	tmp := t.TempDir()
	mustMkdir(t, filepath.Join(tmp, "in"))
	writeFixture(t, filepath.Join(tmp, "in", "broken.png"), []byte("\x89PNG\r\n\x1a\ntruncated"))
	writeFixture(t, filepath.Join(tmp, "in", "good.png"), buildTestPNG(t, 16, 16))

	reporter := &captureReporter{}
	if err := newTestRunner(t, reporter).Run(context.Background(), domain.TransformRequest{InputPath: filepath.Join(tmp, "in")}); err != nil {
		t.Fatalf("run: %v", err)
	}

	byName := reporter.byBase()
	if broken := byName["broken.png"]; broken.OK() || domain.FailureKind(broken.Err) != "decode" {
		t.Fatalf("expected decode failure for broken.png, got %+v", broken)
	}
	if good := byName["good.png"]; !good.OK() {
		t.Fatalf("expected good.png to succeed, got %v", good.Err)
	}
}

func TestRunner_DoesNotRecurse(t *testing.T) {
	tmp := t.TempDir()
	writeFixture(t, filepath.Join(tmp, "top.png"), buildTestPNG(t, 8, 8))
	mustMkdir(t, filepath.Join(tmp, "nested"))
	writeFixture(t, filepath.Join(tmp, "nested", "deep.png"), buildTestPNG(t, 8, 8))

	reporter := &captureReporter{}
	if err := newTestRunner(t, reporter).Run(context.Background(), domain.TransformRequest{InputPath: tmp}); err != nil {
		t.Fatalf("run: %v", err)
	}

	out := reporter.single(t)
	if filepath.Base(out.InputPath) != "top.png" {
		t.Fatalf("expected only top.png, got %s", out.InputPath)
	}
}

func TestRunner_CompressIsIdempotent(t *testing.T) {
	tmp := t.TempDir()
	input := filepath.Join(tmp, "photo.jpg")
	writeFixture(t, input, buildTestJPEG(t, 64, 64))

	var outputs [][]byte
	for i := 0; i < 2; i++ {
		reporter := &captureReporter{}
		if err := newTestRunner(t, reporter).Run(context.Background(), domain.TransformRequest{InputPath: input, JPEGQuality: domain.JPEGQuality(40)}); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		data, err := os.ReadFile(reporter.single(t).OutputPath)
		if err != nil {
			t.Fatalf("read output: %v", err)
		}
		outputs = append(outputs, data)
	}

	if !bytes.Equal(outputs[0], outputs[1]) {
		t.Fatal("expected byte-identical output across runs")
	}
}

func TestRunner_FatalErrors(t *testing.T) {
	tmp := t.TempDir()
	reporter := &captureReporter{}
	runner := newTestRunner(t, reporter)

	err := runner.Run(context.Background(), domain.TransformRequest{InputPath: filepath.Join(tmp, "missing")})
	if !errors.Is(err, ErrInputNotFound) {
		t.Fatalf("expected input not found, got %v", err)
	}

	input := filepath.Join(tmp, "photo.png")
	writeFixture(t, input, buildTestPNG(t, 8, 8))
	blocker := filepath.Join(tmp, "blocker")
	writeFixture(t, blocker, []byte("file"))

	err = runner.Run(context.Background(), domain.TransformRequest{InputPath: input, OutputRoot: blocker})
	if !errors.Is(err, ErrOutputRoot) {
		t.Fatalf("expected output root error, got %v", err)
	}

	err = runner.Run(context.Background(), domain.TransformRequest{InputPath: input, Width: domain.Dimension(0)})
	if !errors.Is(err, domain.ErrInvalidRequest) {
		t.Fatalf("expected invalid request, got %v", err)
	}

	if len(reporter.outcomes) != 0 {
		t.Fatalf("expected no outcomes for fatal errors, got %d", len(reporter.outcomes))
	}
}

func TestRunner_UnreadableInputIsIOError(t *testing.T) {
	tmp := t.TempDir()
	regular := filepath.Join(tmp, "regular")
	writeFixture(t, regular, []byte("file"))

	// A path below a regular file fails with ENOTDIR, not ENOENT.
	err := newTestRunner(t, &captureReporter{}).Run(context.Background(), domain.TransformRequest{
		InputPath: filepath.Join(regular, "child.jpg"),
	})
	if errors.Is(err, ErrInputNotFound) {
		t.Fatalf("expected non-missing stat failure to not be reported as missing, got %v", err)
	}
	if !errors.Is(err, domain.ErrIO) {
		t.Fatalf("expected io error, got %v", err)
	}
}

func TestRunner_UnsetQualityUsesDefault(t *testing.T) {
	tmp := t.TempDir()
	input := filepath.Join(tmp, "photo.jpg")
	writeFixture(t, input, buildTestJPEG(t, 64, 48))

	reporter := &captureReporter{}
	if err := newTestRunner(t, reporter).Run(context.Background(), domain.TransformRequest{InputPath: input}); err != nil {
		t.Fatalf("run: %v", err)
	}
	got, err := os.ReadFile(reporter.single(t).OutputPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}

	c := mustCodec(t)
	decoded, err := c.Decode(input)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want, err := c.EncodeJPEG(decoded, domain.DefaultJPEGQuality)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("expected output encoded at quality %d (%d bytes), got %d bytes",
			domain.DefaultJPEGQuality, len(want), len(got))
	}
}

func TestRunner_StopsBetweenItemsWhenCancelled(t *testing.T) {
	tmp := t.TempDir()
	writeFixture(t, filepath.Join(tmp, "a.png"), buildTestPNG(t, 8, 8))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	reporter := &captureReporter{}
	err := newTestRunner(t, reporter).Run(ctx, domain.TransformRequest{InputPath: tmp})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
	if len(reporter.outcomes) != 0 {
		t.Fatalf("expected no items processed, got %d", len(reporter.outcomes))
	}
}

func TestRunner_PublishFailureBecomesItemFailure(t *testing.T) {
	tmp := t.TempDir()
	input := filepath.Join(tmp, "photo.png")
	writeFixture(t, input, buildTestPNG(t, 8, 8))

	c, err := codec.New()
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	reporter := &captureReporter{}
	runner := NewRunner(log.New(io.Discard, "", 0), c, reporter, WithPublisher(failingPublisher{}))

	if err := runner.Run(context.Background(), domain.TransformRequest{InputPath: input}); err != nil {
		t.Fatalf("run: %v", err)
	}

	out := reporter.single(t)
	if out.OK() || domain.FailureKind(out.Err) != "io" {
		t.Fatalf("expected io failure from publisher, got %+v", out)
	}
	if out.OutputPath == "" {
		t.Fatal("expected output path to be kept on publish failure")
	}
}

type captureReporter struct {
	outcomes []domain.Outcome
}

func (r *captureReporter) Report(outcome domain.Outcome) {
	r.outcomes = append(r.outcomes, outcome)
}

func (r *captureReporter) byBase() map[string]domain.Outcome {
	out := make(map[string]domain.Outcome, len(r.outcomes))
	for _, o := range r.outcomes {
		out[filepath.Base(o.InputPath)] = o
	}
	return out
}

func (r *captureReporter) single(t *testing.T) domain.Outcome {
	t.Helper()

	if len(r.outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(r.outcomes))
	}
	return r.outcomes[0]
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, domain.Outcome) error {
	return errors.Join(domain.ErrIO, errors.New("bucket unreachable"))
}

func newTestRunner(t *testing.T, reporter Reporter) *Runner {
	t.Helper()

	c, err := codec.New()
	if err != nil {
		t.Fatalf("new codec: %v", err)
	}
	return NewRunner(log.New(io.Discard, "", 0), c, reporter)
}

func assertStatsMatchDisk(t *testing.T, out domain.Outcome) {
	t.Helper()

	if out.Stats == nil {
		t.Fatalf("expected stats for %s", out.InputPath)
	}
	info, err := os.Stat(out.OutputPath)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if out.Stats.OutputSize != uint64(info.Size()) {
		t.Fatalf("expected output size %d, got %d", info.Size(), out.Stats.OutputSize)
	}
	src, err := os.Stat(out.InputPath)
	if err != nil {
		t.Fatalf("stat input: %v", err)
	}
	if out.Stats.InputSize != uint64(src.Size()) {
		t.Fatalf("expected input size %d, got %d", src.Size(), out.Stats.InputSize)
	}
}

func buildTestImage(w, h int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{
				R: uint8((x * 255) / w),
				G: uint8((y * 255) / h),
				B: 140,
				A: 255,
			})
		}
	}
	return img
}

func buildTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, buildTestImage(w, h)); err != nil {
		t.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}

func buildTestJPEG(t *testing.T, w, h int) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, buildTestImage(w, h), &jpeg.Options{Quality: 95}); err != nil {
		t.Fatalf("encode source jpeg: %v", err)
	}
	return buf.Bytes()
}

func writeFixture(t *testing.T, path string, data []byte) {
	t.Helper()

	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write fixture %s: %v", path, err)
	}
}

func mustMkdir(t *testing.T, dir string) {
	t.Helper()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", dir, err)
	}
}

func verifyImageSize(t *testing.T, path string, wantW, wantH int) {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open image %s: %v", path, err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		t.Fatalf("decode image %s: %v", path, err)
	}

	if cfg.Width != wantW || cfg.Height != wantH {
		t.Fatalf("expected %dx%d for %s, got %dx%d", wantW, wantH, filepath.Base(path), cfg.Width, cfg.Height)
	}
}
