package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidRequest    = errors.New("invalid request")
	ErrDecode            = errors.New("decode error")
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrCodec             = errors.New("codec error")
	ErrPath              = errors.New("path error")
	ErrIO                = errors.New("io error")
)

// FailureKind maps an item error to the label shown to the user.
func FailureKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported format"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrCodec):
		return "codec"
	case errors.Is(err, ErrPath):
		return "path"
	case errors.Is(err, ErrInvalidRequest):
		return "invalid request"
	default:
		return "io"
	}
}

// CompressionStats compares the byte size of a source and its output.
type CompressionStats struct {
	InputSize  uint64  `json:"input_size_bytes"`
	OutputSize uint64  `json:"output_size_bytes"`
	Ratio      float64 `json:"compression_ratio"`
}

func NewCompressionStats(inputSize, outputSize uint64) (CompressionStats, error) {
	if inputSize == 0 {
		return CompressionStats{}, fmt.Errorf("%w: input size must be greater than zero", ErrInvalidRequest)
	}
	return CompressionStats{
		InputSize:  inputSize,
		OutputSize: outputSize,
		Ratio:      1 - float64(outputSize)/float64(inputSize),
	}, nil
}

// Saved returns input minus output; negative when the output grew.
func (s CompressionStats) Saved() int64 {
	return int64(s.InputSize) - int64(s.OutputSize)
}

type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailure OutcomeStatus = "failure"
)

// Outcome is the single result produced for a WorkItem.
type Outcome struct {
	Status      OutcomeStatus
	InputPath   string
	OutputPath  string
	ResizedPath string
	Format      ImageFormat
	Operation   Operation
	Width       int
	Height      int
	Stats       *CompressionStats
	Err         error
	Duration    time.Duration
}

func Succeeded(input, output string, stats *CompressionStats) Outcome {
	return Outcome{
		Status:     OutcomeSuccess,
		InputPath:  input,
		OutputPath: output,
		Stats:      stats,
	}
}

func Failed(input string, err error) Outcome {
	return Outcome{
		Status:    OutcomeFailure,
		InputPath: input,
		Err:       err,
	}
}

func (o Outcome) OK() bool {
	return o.Status == OutcomeSuccess
}

// Reason renders the failure kind and cause.
func (o Outcome) Reason() string {
	if o.Err == nil {
		return ""
	}
	return fmt.Sprintf("%s: %v", FailureKind(o.Err), o.Err)
}
