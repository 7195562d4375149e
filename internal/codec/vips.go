//go:build govips && cgo

package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"math"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/flthibaud/rapidimg/internal/domain"
)

func init() {
	backend.codec = govipsCodec{}
	backend.start = func() {
		vips.LoggingSettings(nil, vips.LogLevelWarning)
		vips.Startup(&vips.Config{
			ConcurrencyLevel: 1,
			MaxCacheMem:      128 << 20,
			MaxCacheSize:     100,
		})
	}
	backend.stop = vips.Shutdown
}

// govipsCodec encodes through libvips. Sniffing and decoding stay on the
// stdlib path so the resize stage always works on an image.Image.
type govipsCodec struct {
	stdlibCodec
}

func (govipsCodec) Name() string {
	return "govips"
}

func (govipsCodec) EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	ref, err := toVips(img)
	if err != nil {
		return nil, err
	}
	defer ref.Close()

	quality, _ = domain.NormalizeJPEGQuality(quality)
	params := vips.NewJpegExportParams()
	params.Quality = quality
	params.StripMetadata = true
	params.OptimizeCoding = true

	data, _, err := ref.ExportJpeg(params)
	if err != nil {
		return nil, fmt.Errorf("%w: encode jpeg: %w", domain.ErrCodec, err)
	}
	return data, nil
}

func (govipsCodec) EncodePNG(img image.Image) ([]byte, error) {
	ref, err := toVips(img)
	if err != nil {
		return nil, err
	}
	defer ref.Close()

	data, _, err := ref.ExportPng(vips.NewPngExportParams())
	if err != nil {
		return nil, fmt.Errorf("%w: encode png: %w", domain.ErrCodec, err)
	}
	return data, nil
}

func (govipsCodec) EncodeWebP(img image.Image, quality float32) ([]byte, error) {
	ref, err := toVips(img)
	if err != nil {
		return nil, err
	}
	defer ref.Close()

	quality, _ = domain.ClampWebPQuality(quality)
	params := vips.NewWebpExportParams()
	params.Quality = int(math.Round(float64(quality)))
	params.StripMetadata = true

	data, _, err := ref.ExportWebp(params)
	if err != nil {
		return nil, fmt.Errorf("%w: encode webp: %w", domain.ErrCodec, err)
	}
	return data, nil
}

func (govipsCodec) OptimizePNG(path string) ([]byte, error) {
	if err := requireFile(path); err != nil {
		return nil, err
	}

	ref, err := vips.NewImageFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: load png %s: %w", domain.ErrCodec, path, err)
	}
	defer ref.Close()

	params := vips.NewPngExportParams()
	params.Compression = 9
	params.Filter = vips.PngFilterAll
	params.Interlace = false
	params.StripMetadata = true

	data, _, err := ref.ExportPng(params)
	if err != nil {
		return nil, fmt.Errorf("%w: optimize png: %w", domain.ErrCodec, err)
	}
	return data, nil
}

// toVips hands a bitmap to libvips through an uncompressed PNG buffer.
func toVips(img image.Image) (*vips.ImageRef, error) {
	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.NoCompression}
	if err := encoder.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: stage bitmap: %w", domain.ErrCodec, err)
	}

	ref, err := vips.NewImageFromBuffer(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: load bitmap: %w", domain.ErrCodec, err)
	}
	return ref, nil
}
