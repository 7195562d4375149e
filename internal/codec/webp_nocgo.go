//go:build !cgo

package codec

import "image"

func encodeWebP(image.Image, float32) ([]byte, error) {
	return nil, ErrWebPUnavailable
}
