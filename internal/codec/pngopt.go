package codec

import (
	"image"
	"image/color"
)

// smallPalette is the largest palette the png encoder packs below 8 bits
// per pixel.
const smallPalette = 16

// reduceLossless picks the cheapest pixel layout that reproduces src
// exactly: a palette when there are at most 256 colors, 8-bit gray for
// opaque grayscale, and 8-bit NRGBA when 16-bit samples carry no extra
// precision. src is returned as is when nothing can be reduced.
func reduceLossless(src image.Image) image.Image {
	b := src.Bounds()
	if b.Empty() {
		return src
	}

	flat := image.NewNRGBA(b)
	index := make(map[color.NRGBA]uint8, 256)
	palette := make(color.Palette, 0, 256)
	overflow := false
	opaque, gray := true, true

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c, ok := pixel8(src, x, y)
			if !ok {
				return src
			}
			flat.SetNRGBA(x, y, c)

			if c.A != 0xff {
				opaque = false
			}
			if c.R != c.G || c.G != c.B {
				gray = false
			}
			if overflow {
				continue
			}
			if _, seen := index[c]; !seen {
				if len(palette) == 256 {
					overflow = true
					continue
				}
				index[c] = uint8(len(palette))
				palette = append(palette, c)
			}
		}
	}

	switch {
	case !overflow && len(palette) <= smallPalette:
		return toPaletted(flat, palette, index)
	case gray && opaque:
		return toGray(flat)
	case !overflow:
		return toPaletted(flat, palette, index)
	default:
		return flat
	}
}

func pixel8(src image.Image, x, y int) (color.NRGBA, bool) {
	switch img := src.(type) {
	case *image.NRGBA64:
		return narrow(img.NRGBA64At(x, y))
	case *image.Gray16:
		g := img.Gray16At(x, y).Y
		return narrow(color.NRGBA64{R: g, G: g, B: g, A: 0xffff})
	case *image.RGBA64:
		return narrow(color.NRGBA64Model.Convert(img.RGBA64At(x, y)).(color.NRGBA64))
	default:
		return color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA), true
	}
}

// narrow drops the low byte of each sample when it repeats the high byte.
func narrow(c color.NRGBA64) (color.NRGBA, bool) {
	for _, v := range [4]uint16{c.R, c.G, c.B, c.A} {
		if v>>8 != v&0xff {
			return color.NRGBA{}, false
		}
	}
	return color.NRGBA{R: uint8(c.R >> 8), G: uint8(c.G >> 8), B: uint8(c.B >> 8), A: uint8(c.A >> 8)}, true
}

func toPaletted(flat *image.NRGBA, palette color.Palette, index map[color.NRGBA]uint8) *image.Paletted {
	b := flat.Bounds()
	dst := image.NewPaletted(b, palette)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.SetColorIndex(x, y, index[flat.NRGBAAt(x, y)])
		}
	}
	return dst
}

func toGray(flat *image.NRGBA) *image.Gray {
	b := flat.Bounds()
	dst := image.NewGray(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dst.SetGray(x, y, color.Gray{Y: flat.NRGBAAt(x, y).R})
		}
	}
	return dst
}
