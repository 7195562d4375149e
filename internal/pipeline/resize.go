package pipeline

import (
	"image"

	"github.com/disintegration/imaging"
)

// Resize scales img with a Lanczos filter. When only one dimension is set
// the other keeps the source aspect ratio. With neither set img is returned
// unchanged.
func Resize(img image.Image, width, height *uint32) image.Image {
	if width == nil && height == nil {
		return img
	}

	b := img.Bounds()
	w, h := TargetSize(b.Dx(), b.Dy(), width, height)
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

// TargetSize computes the output dimensions of a resize. The derived
// dimension is truncated and never drops below one pixel.
func TargetSize(srcW, srcH int, width, height *uint32) (int, int) {
	switch {
	case width != nil && height != nil:
		return int(*width), int(*height)
	case width != nil:
		return int(*width), scaled(*width, srcH, srcW)
	case height != nil:
		return scaled(*height, srcW, srcH), int(*height)
	default:
		return srcW, srcH
	}
}

func scaled(given uint32, other, along int) int {
	if along <= 0 || other <= 0 {
		return 1
	}
	v := uint64(given) * uint64(other) / uint64(along)
	if v < 1 {
		return 1
	}
	return int(v)
}
