package viewer

import (
	"github.com/dgallion1/dochighlight/internal/layout"
	"github.com/dgallion1/dochighlight/internal/overview"
	"github.com/dgallion1/dochighlight/internal/raster"
)

// Sink is the rendering collaborator that receives layout output. Calls are
// made outside the view's locks and must not block for long.
type Sink interface {
	ShapesRendered(docID string, page int, shapes []HandleShape)
	MarkersChanged(docID string, markers []overview.Marker)
	StrokeChanged(docID, spanID string, stroke raster.Stroke)
}

// HandleShape is a shape tagged with its span's render handle.
type HandleShape struct {
	Handle string `json:"handle"`
	layout.Shape
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) ShapesRendered(string, int, []HandleShape) {}
func (NopSink) MarkersChanged(string, []overview.Marker) {}
func (NopSink) StrokeChanged(string, string, raster.Stroke) {}
