// Package raster provides the page handles the layout engine draws onto and
// the stroking and snapshot helpers that consume its shapes.
package raster

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"

	xdraw "golang.org/x/image/draw"
)

// Page is a rendered page handle: the draw target plus its pixel size.
type Page struct {
	Number int
	Width  int
	Height int
	Target *image.RGBA
}

// Renderer produces the raster handle for a page at a given scale. Render
// may block; it is the only suspension point of a layout pass.
type Renderer interface {
	Render(ctx context.Context, page int, scale float64) (*Page, error)
}

// SizeFunc reports a page's native size.
type SizeFunc func(page int) (w, h float64, ok bool)

// BlankRenderer allocates white targets of the scaled native page size.
// Glyph rasterization is left to the client viewer.
type BlankRenderer struct {
	Sizes SizeFunc
}

func (r BlankRenderer) Render(ctx context.Context, page int, scale float64) (*Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.Sizes == nil {
		return nil, fmt.Errorf("page %d: no page size source", page)
	}
	w, h, ok := r.Sizes(page)
	if !ok {
		return nil, fmt.Errorf("page %d: unknown page size", page)
	}
	pw := int(math.Ceil(w * scale))
	ph := int(math.Ceil(h * scale))
	if pw <= 0 || ph <= 0 {
		return nil, fmt.Errorf("page %d: empty raster %dx%d", page, pw, ph)
	}
	return NewPage(page, pw, ph), nil
}

// NewPage returns a white page of the given pixel size.
func NewPage(number, w, h int) *Page {
	target := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(target, target.Bounds(), image.NewUniform(color.White), image.Point{}, xdraw.Src)
	return &Page{Number: number, Width: w, Height: h, Target: target}
}
