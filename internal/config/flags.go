package config

import (
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/flthibaud/rapidimg/internal/domain"
)

// Version is printed by --version; set at build time with
// -ldflags "-X github.com/flthibaud/rapidimg/internal/config.Version=...".
var Version = "0.1.0-dev"

// Flags holds values that only exist on the command line.
type Flags struct {
	ShowVersion bool
}

// Parse applies args on top of cfg, which normally comes from Load. Quality
// flags are taken as strings so malformed values can fall back with a
// warning instead of aborting. -h returns flag.ErrHelp.
func Parse(args []string, cfg *Config, usageOut io.Writer) (Flags, error) {
	fs := flag.NewFlagSet("rapidimg", flag.ContinueOnError)
	fs.SetOutput(usageOut)
	fs.Usage = func() { printUsage(fs, usageOut) }

	var (
		flags       Flags
		jpegQuality string
		webpQuality string
	)

	fs.StringVar(&cfg.Run.Input, "input", cfg.Run.Input, "Image file or directory to process (required)")
	fs.StringVar(&cfg.Run.Input, "i", cfg.Run.Input, "Same as --input")
	fs.StringVar(&cfg.Run.Output, "output", cfg.Run.Output, "Output root directory (default: beside each input)")
	fs.StringVar(&cfg.Run.Output, "o", cfg.Run.Output, "Same as --output")
	fs.BoolVar(&cfg.Run.WebP, "webp", cfg.Run.WebP, "Convert to WebP instead of compressing in place")
	fs.Var(dimensionValue{&cfg.Run.Width}, "width", "Resize width in pixels")
	fs.Var(dimensionValue{&cfg.Run.Width}, "w", "Same as --width")
	fs.Var(dimensionValue{&cfg.Run.Height}, "height", "Resize height in pixels")
	fs.StringVar(&jpegQuality, "quality", "", "JPEG quality 0-100 (default 75)")
	fs.StringVar(&webpQuality, "webp-quality", "", "WebP quality 0-100 (default 75)")
	fs.Var(resizePolicyValue{&cfg.Run.ResizePolicy}, "resize-policy", "What the compress step reads after a resize: separate | chain")
	fs.StringVar(&cfg.Run.MetricsFile, "metrics-file", cfg.Run.MetricsFile, "Write prometheus metrics to this textfile at exit")
	fs.StringVar(&cfg.Notify.URL, "notify-url", cfg.Notify.URL, "POST a signed run summary to this URL")
	fs.BoolVar(&cfg.Run.Upload, "upload", cfg.Run.Upload, "Mirror outputs to the configured object store")
	fs.BoolVar(&flags.ShowVersion, "version", false, "Print version and exit")

	if err := fs.Parse(args); err != nil {
		return flags, err
	}
	if fs.NArg() > 0 {
		return flags, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	if jpegQuality != "" {
		cfg.Run.JPEGQuality = cfg.jpegQuality("--quality", jpegQuality)
	}
	if webpQuality != "" {
		cfg.Run.WebPQuality = cfg.webpQuality("--webp-quality", webpQuality)
	}
	return flags, nil
}

type dimensionValue struct {
	dst **uint32
}

func (v dimensionValue) String() string {
	if v.dst == nil || *v.dst == nil {
		return ""
	}
	return strconv.FormatUint(uint64(**v.dst), 10)
}

func (v dimensionValue) Set(s string) error {
	n, err := strconv.ParseUint(strings.TrimSpace(s), 10, 32)
	if err != nil {
		return fmt.Errorf("dimension must be a non-negative integer")
	}
	*v.dst = domain.Dimension(uint32(n))
	return nil
}

type resizePolicyValue struct {
	dst *domain.ResizePolicy
}

func (v resizePolicyValue) String() string {
	if v.dst == nil {
		return ""
	}
	return string(*v.dst)
}

func (v resizePolicyValue) Set(s string) error {
	p, err := domain.ParseResizePolicy(s)
	if err != nil {
		return err
	}
	*v.dst = p
	return nil
}

func printUsage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintf(w, "rapidimg v%s\n\n", Version)
	fmt.Fprintln(w, "Usage: rapidimg -i <file|dir> [-o <dir>] [--webp] [-w N] [--height N] [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fs.PrintDefaults()
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Environment: RAPIDIMG_JPEG_QUALITY, RAPIDIMG_WEBP_QUALITY, RAPIDIMG_RESIZE_POLICY,")
	fmt.Fprintln(w, "RAPIDIMG_METRICS_FILE, RAPIDIMG_NOTIFY_URL, RAPIDIMG_NOTIFY_SECRET, MINIO_*, OTEL_*.")
	fmt.Fprintln(w, "A .env file in the working directory is read when present.")
}
