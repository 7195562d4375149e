// Package codec wraps the image libraries behind the operations the
// pipeline needs: sniffing, decoding and the three output encoders.
package codec

import (
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/flthibaud/rapidimg/internal/domain"
	"github.com/gabriel-vasile/mimetype"
)

var (
	// ErrWebPUnavailable is returned by builds that have no WebP encoder.
	ErrWebPUnavailable = errors.New("webp encoding requires cgo")
	ErrShutdown        = errors.New("codec runtime already shut down")
)

type Codec interface {
	// Sniff classifies a file by its content, ignoring the extension.
	Sniff(path string) (domain.ImageFormat, error)
	Decode(path string) (image.Image, error)
	EncodeJPEG(img image.Image, quality int) ([]byte, error)
	EncodePNG(img image.Image) ([]byte, error)
	EncodeWebP(img image.Image, quality float32) ([]byte, error)
	// OptimizePNG losslessly re-encodes the PNG stored at path. It reads the
	// source file rather than a decoded bitmap.
	OptimizePNG(path string) ([]byte, error)
	Name() string
}

// backend is the codec New hands out, with the hooks that bring its native
// library up and down. Builds linking libvips replace it from init.
var backend = struct {
	codec Codec
	start func()
	stop  func()
}{codec: stdlibCodec{}}

type runtimeState int

const (
	stateIdle runtimeState = iota
	stateRunning
	stateStopped
)

var (
	runtimeMu sync.Mutex
	state     runtimeState
)

// Startup brings up the native backend once. After Shutdown it fails with
// ErrShutdown since libvips cannot be restarted in the same process.
func Startup() error {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	switch state {
	case stateRunning:
		return nil
	case stateStopped:
		return ErrShutdown
	}
	if backend.start != nil {
		backend.start()
	}
	state = stateRunning
	return nil
}

// Shutdown releases the native backend. It is a no-op when Startup never ran.
func Shutdown() {
	runtimeMu.Lock()
	defer runtimeMu.Unlock()

	if state != stateRunning {
		return
	}
	if backend.stop != nil {
		backend.stop()
	}
	state = stateStopped
}

// New returns the codec selected at build time, starting its runtime.
func New() (Codec, error) {
	if err := Startup(); err != nil {
		return nil, err
	}
	return backend.codec, nil
}

func sniffFile(path string) (domain.ImageFormat, error) {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return domain.FormatUnsupported, fmt.Errorf("%w: sniff %s: %w", domain.ErrIO, path, err)
	}
	return formatForMIME(mt), nil
}

func formatForMIME(mt *mimetype.MIME) domain.ImageFormat {
	switch {
	case mt.Is("image/jpeg"):
		return domain.FormatJPEG
	case mt.Is("image/png"):
		return domain.FormatPNG
	case mt.Is("image/webp"):
		return domain.FormatWebP
	default:
		return domain.FormatUnsupported
	}
}

func requireFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: source %s: %w", domain.ErrCodec, path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: source %s is not a regular file", domain.ErrCodec, path)
	}
	return nil
}
