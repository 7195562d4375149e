package domain

import (
	"fmt"
	"strings"
)

// ImageFormat is the content-sniffed format of an input file.
type ImageFormat int

const (
	FormatUnsupported ImageFormat = iota
	FormatJPEG
	FormatPNG
	FormatWebP
)

func (f ImageFormat) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatPNG:
		return "png"
	case FormatWebP:
		return "webp"
	default:
		return "unsupported"
	}
}

// Operation selects the naming convention of an output file.
type Operation int

const (
	OperationResize Operation = iota
	OperationCompress
	OperationConvert
)

func (o Operation) String() string {
	switch o {
	case OperationResize:
		return "resize"
	case OperationCompress:
		return "compress"
	case OperationConvert:
		return "convert"
	default:
		return "unknown"
	}
}

// Mode is the batch-wide transform selector.
type Mode int

const (
	ModeCompressInPlace Mode = iota
	ModeConvertToWebP
)

func (m Mode) String() string {
	if m == ModeConvertToWebP {
		return "convert_webp"
	}
	return "compress"
}

// ResizePolicy decides which bitmap feeds the compress/convert step when a
// resize was requested.
type ResizePolicy string

const (
	// ResizeSeparate writes the _resized artifact and transforms the original.
	ResizeSeparate ResizePolicy = "separate"
	// ResizeChain writes the _resized artifact and transforms the resized bitmap.
	ResizeChain ResizePolicy = "chain"
)

func ParseResizePolicy(in string) (ResizePolicy, error) {
	switch ResizePolicy(strings.ToLower(strings.TrimSpace(in))) {
	case "", ResizeSeparate:
		return ResizeSeparate, nil
	case ResizeChain:
		return ResizeChain, nil
	default:
		return "", fmt.Errorf("%w: unknown resize policy %q", ErrInvalidRequest, in)
	}
}

const (
	DefaultJPEGQuality = 75
	DefaultWebPQuality = float32(75)
)

// WorkItem is one input file of a run.
type WorkItem struct {
	Path string
	// Batch is set when the item was enumerated from a directory input.
	Batch bool
}

// TransformRequest holds the parameters resolved once before a run starts.
// A nil quality means the default. Out-of-range qualities are not rejected
// here; they fall back the same way when resolved.
type TransformRequest struct {
	InputPath    string
	OutputRoot   string
	Width        *uint32
	Height       *uint32
	Mode         Mode
	JPEGQuality  *int
	WebPQuality  *float32
	ResizePolicy ResizePolicy
}

// ResolvedJPEGQuality returns the JPEG quality a run encodes with.
func (r TransformRequest) ResolvedJPEGQuality() int {
	if r.JPEGQuality == nil {
		return DefaultJPEGQuality
	}
	q, _ := NormalizeJPEGQuality(*r.JPEGQuality)
	return q
}

// ResolvedWebPQuality returns the WebP quality a run encodes with.
func (r TransformRequest) ResolvedWebPQuality() float32 {
	if r.WebPQuality == nil {
		return DefaultWebPQuality
	}
	q, _ := ClampWebPQuality(*r.WebPQuality)
	return q
}

// WantsResize reports whether at least one target dimension is set.
func (r TransformRequest) WantsResize() bool {
	return r.Width != nil || r.Height != nil
}

func (r TransformRequest) Validate() error {
	if strings.TrimSpace(r.InputPath) == "" {
		return fmt.Errorf("%w: input path is required", ErrInvalidRequest)
	}
	if r.Width != nil && *r.Width == 0 {
		return fmt.Errorf("%w: width must be greater than zero", ErrInvalidRequest)
	}
	if r.Height != nil && *r.Height == 0 {
		return fmt.Errorf("%w: height must be greater than zero", ErrInvalidRequest)
	}
	if _, err := ParseResizePolicy(string(r.ResizePolicy)); err != nil {
		return err
	}
	return nil
}

// NormalizeJPEGQuality returns q when it is within 0..100 and the default otherwise.
func NormalizeJPEGQuality(q int) (int, bool) {
	if q < 0 || q > 100 {
		return DefaultJPEGQuality, false
	}
	return q, true
}

// ClampWebPQuality forces q into 0..100. NaN maps to the default.
func ClampWebPQuality(q float32) (float32, bool) {
	switch {
	case q != q:
		return DefaultWebPQuality, false
	case q < 0:
		return 0, false
	case q > 100:
		return 100, false
	default:
		return q, true
	}
}

func Dimension(v uint32) *uint32 {
	return &v
}

func JPEGQuality(q int) *int {
	return &q
}

func WebPQuality(q float32) *float32 {
	return &q
}
