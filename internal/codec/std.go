package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"

	"github.com/flthibaud/rapidimg/internal/domain"
	_ "golang.org/x/image/webp"
)

type stdlibCodec struct{}

func (stdlibCodec) Name() string {
	return "stdlib"
}

func (stdlibCodec) Sniff(path string) (domain.ImageFormat, error) {
	return sniffFile(path)
}

func (stdlibCodec) Decode(path string) (image.Image, error) {
	return decodeFile(path)
}

func decodeFile(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrDecode, path, err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrDecode, path, err)
	}
	return img, nil
}

func (stdlibCodec) EncodeJPEG(img image.Image, quality int) ([]byte, error) {
	quality, _ = domain.NormalizeJPEGQuality(quality)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, fmt.Errorf("%w: encode jpeg: %w", domain.ErrCodec, err)
	}
	return buf.Bytes(), nil
}

func (stdlibCodec) EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := encoder.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: encode png: %w", domain.ErrCodec, err)
	}
	return buf.Bytes(), nil
}

func (stdlibCodec) EncodeWebP(img image.Image, quality float32) ([]byte, error) {
	quality, _ = domain.ClampWebPQuality(quality)
	data, err := encodeWebP(img, quality)
	if err != nil {
		return nil, fmt.Errorf("%w: encode webp: %w", domain.ErrCodec, err)
	}
	return data, nil
}

// OptimizePNG re-encodes the source at maximum deflate effort after
// applying only lossless reductions. The encoder drops ancillary chunks and
// never interlaces.
func (stdlibCodec) OptimizePNG(path string) ([]byte, error) {
	if err := requireFile(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrCodec, path, err)
	}
	defer f.Close()

	src, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: read png %s: %w", domain.ErrCodec, path, err)
	}

	var buf bytes.Buffer
	encoder := png.Encoder{CompressionLevel: png.BestCompression}
	if err := encoder.Encode(&buf, reduceLossless(src)); err != nil {
		return nil, fmt.Errorf("%w: optimize png: %w", domain.ErrCodec, err)
	}
	return buf.Bytes(), nil
}
