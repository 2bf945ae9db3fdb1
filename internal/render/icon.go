package render

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"strings"

	"github.com/nfnt/resize"
)

// IconSize is the edge length of every generated icon.
const IconSize = 96

type Shape int

const (
	ShapeCircle Shape = iota
	ShapeSquare
	ShapeSquircle
	ShapeCookie
	ShapeArch
	ShapeClover8
)

// ParseShape maps a theme shape id; unknown ids are circles.
func ParseShape(s string) Shape {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "square":
		return ShapeSquare
	case "squircle":
		return ShapeSquircle
	case "cookie":
		return ShapeCookie
	case "arch":
		return ShapeArch
	case "clover8", "clover", "flower":
		return ShapeClover8
	default:
		return ShapeCircle
	}
}

// contains reports whether the normalized point (x, y in [-1, 1], y down)
// lies inside the shape.
func (s Shape) contains(x, y float64) bool {
	r := math.Hypot(x, y)
	theta := math.Atan2(y, x)
	switch s {
	case ShapeSquare:
		return math.Abs(x) <= 1 && math.Abs(y) <= 1
	case ShapeSquircle:
		return x*x*x*x+y*y*y*y <= 1
	case ShapeCookie:
		return r <= 0.9+0.1*math.Cos(12*theta)
	case ShapeArch:
		if y < 0 {
			return r <= 1
		}
		return math.Abs(x) <= 1 && y <= 1
	case ShapeClover8:
		return r <= 0.72+0.28*math.Abs(math.Cos(4*theta))
	default:
		return r <= 1
	}
}

// ShapeIcon renders a themed icon: bg filled into the shape mask with src
// tinted white, scaled and centered with paddingPercent of the edge on
// each side. A nil src yields the bare shape.
func ShapeIcon(src image.Image, shape Shape, bg color.Color, paddingPercent int) image.Image {
	if paddingPercent < 0 {
		paddingPercent = 0
	}
	if paddingPercent > 45 {
		paddingPercent = 45
	}
	dst := fillShape(shape, bg)
	drawWhite(dst, src, IconSize*paddingPercent/100)
	return dst
}

// RoundedIcon is the plain composite used without a theme: a bg circle with
// src tinted white inset by paddingPx.
func RoundedIcon(src image.Image, bg color.Color, paddingPx int) image.Image {
	dst := fillShape(ShapeCircle, bg)
	drawWhite(dst, src, paddingPx)
	return dst
}

// Transparent returns a fully transparent size x size image.
func Transparent(size int) image.Image {
	if size <= 0 {
		size = IconSize
	}
	return image.NewNRGBA(image.Rect(0, 0, size, size))
}

// Dot is a filled circle in c.
func Dot(c color.Color) image.Image {
	return fillShape(ShapeCircle, c)
}

// Tint returns src recolored to c, keeping its alpha, scaled to IconSize.
func Tint(src image.Image, c color.Color) image.Image {
	if src == nil {
		return Dot(c)
	}
	dst := image.NewNRGBA(image.Rect(0, 0, IconSize, IconSize))
	scaled := resize.Resize(IconSize, IconSize, src, resize.Bilinear)
	draw.DrawMask(dst, dst.Bounds(), image.NewUniform(c), image.Point{}, scaled, scaled.Bounds().Min, draw.Over)
	return dst
}

// Checkmark draws a check in c over a transparent background.
func Checkmark(c color.Color) image.Image {
	dst := image.NewNRGBA(image.Rect(0, 0, IconSize, IconSize))
	const half = 5.0
	a := [2]float64{26, 50}
	b := [2]float64{42, 66}
	e := [2]float64{72, 32}
	for y := 0; y < IconSize; y++ {
		for x := 0; x < IconSize; x++ {
			p := [2]float64{float64(x) + 0.5, float64(y) + 0.5}
			if segDist(p, a, b) <= half || segDist(p, b, e) <= half {
				dst.Set(x, y, c)
			}
		}
	}
	return dst
}

func fillShape(shape Shape, bg color.Color) *image.NRGBA {
	dst := image.NewNRGBA(image.Rect(0, 0, IconSize, IconSize))
	if bg == nil {
		return dst
	}
	const c = IconSize / 2.0
	for y := 0; y < IconSize; y++ {
		for x := 0; x < IconSize; x++ {
			nx := (float64(x) + 0.5 - c) / c
			ny := (float64(y) + 0.5 - c) / c
			if shape.contains(nx, ny) {
				dst.Set(x, y, bg)
			}
		}
	}
	return dst
}

// drawWhite paints src's alpha as white into dst, inset by pad.
func drawWhite(dst *image.NRGBA, src image.Image, pad int) {
	target := IconSize - 2*pad
	if src == nil || target <= 0 || src.Bounds().Empty() {
		return
	}
	scaled := resize.Resize(uint(target), uint(target), src, resize.Bilinear)
	r := image.Rect(pad, pad, pad+target, pad+target)
	draw.DrawMask(dst, r, image.NewUniform(color.White), image.Point{}, scaled, scaled.Bounds().Min, draw.Over)
}

func segDist(p, a, b [2]float64) float64 {
	dx, dy := b[0]-a[0], b[1]-a[1]
	t := ((p[0]-a[0])*dx + (p[1]-a[1])*dy) / (dx*dx + dy*dy)
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(p[0]-(a[0]+t*dx), p[1]-(a[1]+t*dy))
}
