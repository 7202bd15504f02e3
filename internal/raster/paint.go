package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"

	"github.com/dgallion1/dochighlight/internal/layout"
	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/vector"
)

// Stroke is how a span's outline is drawn. An empty Color draws nothing.
type Stroke struct {
	Width  float64 `json:"width"`
	Color  string  `json:"color,omitempty"`
	Dashed bool    `json:"dashed"`
}

// Visible reports whether the stroke paints anything.
func (s Stroke) Visible() bool {
	return s.Color != "" && s.Width > 0
}

// ResolveStroke picks the outline for a span from its link color and
// interaction state. Selection wins over hover.
func ResolveStroke(opts layout.Options, linkColor string, selected, hovered bool) Stroke {
	switch {
	case selected:
		c := linkColor
		if c == "" {
			c = opts.SelectedColor
		}
		return Stroke{Width: opts.SelectedBorderWidth, Color: c, Dashed: true}
	case hovered:
		c := linkColor
		if c == "" {
			c = opts.HoverColor
		}
		return Stroke{Width: opts.BorderWidth, Color: c}
	default:
		return Stroke{Width: opts.BorderWidth, Color: linkColor}
	}
}

// Selected dash pattern, in pixels: on, off.
var dashPattern = [2]float64{15, 5}

// Paint strokes every shape's borders onto dst using the stroke returned for
// its span.
func Paint(dst *image.RGBA, shapes []layout.Shape, strokeFor func(spanID string) Stroke) error {
	b := dst.Bounds()
	z := vector.NewRasterizer(b.Dx(), b.Dy())
	for _, s := range shapes {
		st := strokeFor(s.SpanID)
		if !st.Visible() {
			continue
		}
		c, err := ParseColor(st.Color)
		if err != nil {
			return fmt.Errorf("span %s: %w", s.SpanID, err)
		}
		z.Reset(b.Dx(), b.Dy())
		for _, seg := range s.PageBorders() {
			seg = layout.Segment{
				X0: math.Floor(seg.X0) - float64(b.Min.X),
				Y0: math.Floor(seg.Y0) - float64(b.Min.Y),
				X1: math.Floor(seg.X1) - float64(b.Min.X),
				Y1: math.Floor(seg.Y1) - float64(b.Min.Y),
			}
			if st.Dashed {
				for _, d := range dashes(seg, dashPattern) {
					addStroke(z, d, st.Width)
				}
			} else {
				addStroke(z, seg, st.Width)
			}
		}
		z.Draw(dst, b, image.NewUniform(c), image.Point{})
	}
	return nil
}

// Overlay returns a copy of the page with shapes stroked on top.
func Overlay(p *Page, shapes []layout.Shape, strokeFor func(spanID string) Stroke) (*image.RGBA, error) {
	out := image.NewRGBA(p.Target.Bounds())
	xdraw.Copy(out, image.Point{}, p.Target, p.Target.Bounds(), xdraw.Src, nil)
	if err := Paint(out, shapes, strokeFor); err != nil {
		return nil, err
	}
	return out, nil
}

// EncodePNG encodes img as PNG.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// Snapshot crops area (page pixels) padded by margin out of src and encodes
// it as JPEG, downscaling to maxWidth when it is positive and smaller.
func Snapshot(src image.Image, area image.Rectangle, margin layout.Margin, maxWidth int) ([]byte, error) {
	crop := image.Rect(
		area.Min.X-int(margin.Left),
		area.Min.Y-int(margin.Top),
		area.Max.X+int(margin.Right),
		area.Max.Y+int(margin.Bottom),
	).Intersect(src.Bounds())
	if crop.Empty() {
		return nil, fmt.Errorf("snapshot area %v is outside the page", area)
	}

	w, h := crop.Dx(), crop.Dy()
	var out *image.RGBA
	if maxWidth > 0 && w > maxWidth {
		sh := int(math.Max(1, math.Round(float64(h)*float64(maxWidth)/float64(w))))
		out = image.NewRGBA(image.Rect(0, 0, maxWidth, sh))
		xdraw.CatmullRom.Scale(out, out.Bounds(), src, crop, xdraw.Src, nil)
	} else {
		out = image.NewRGBA(image.Rect(0, 0, w, h))
		xdraw.Copy(out, image.Point{}, src, crop, xdraw.Src, nil)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	return buf.Bytes(), nil
}

// addStroke adds a butt-capped line of the given width as a closed quad.
func addStroke(z *vector.Rasterizer, s layout.Segment, width float64) {
	dx, dy := s.X1-s.X0, s.Y1-s.Y0
	l := math.Hypot(dx, dy)
	if l == 0 {
		return
	}
	nx, ny := -dy/l*width/2, dx/l*width/2
	z.MoveTo(float32(s.X0+nx), float32(s.Y0+ny))
	z.LineTo(float32(s.X1+nx), float32(s.Y1+ny))
	z.LineTo(float32(s.X1-nx), float32(s.Y1-ny))
	z.LineTo(float32(s.X0-nx), float32(s.Y0-ny))
	z.ClosePath()
}

// dashes splits s into its "on" pieces.
func dashes(s layout.Segment, pattern [2]float64) []layout.Segment {
	dx, dy := s.X1-s.X0, s.Y1-s.Y0
	l := math.Hypot(dx, dy)
	if l == 0 {
		return nil
	}
	ux, uy := dx/l, dy/l
	var out []layout.Segment
	for pos := 0.0; pos < l; pos += pattern[0] + pattern[1] {
		end := math.Min(pos+pattern[0], l)
		out = append(out, layout.Segment{
			X0: s.X0 + ux*pos, Y0: s.Y0 + uy*pos,
			X1: s.X0 + ux*end, Y1: s.Y0 + uy*end,
		})
	}
	return out
}
