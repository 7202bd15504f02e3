package layout

import (
	"fmt"
	"math"
)

// Margin is an inflation applied on each side of a box, in source units.
type Margin struct {
	Top    float64 `json:"top"`
	Left   float64 `json:"left"`
	Bottom float64 `json:"bottom"`
	Right  float64 `json:"right"`
}

// UniformMargin returns a margin with the same value on every side.
func UniformMargin(v float64) Margin {
	return Margin{Top: v, Left: v, Bottom: v, Right: v}
}

// Options collects every geometry and styling constant used by the engine.
type Options struct {
	MarginChunk         Margin // fragment inflation before clustering
	MarginImage         Margin // padding around span snapshots
	BorderWidth         float64
	SelectedBorderWidth float64
	HoverColor          string
	SelectedColor       string

	// PreSort orders fragments by (page, row, left-x) before clustering
	// instead of trusting the order supplied by the metadata.
	PreSort bool
}

// DefaultOptions returns the values the viewer has always used.
func DefaultOptions() Options {
	return Options{
		MarginChunk:         UniformMargin(2),
		MarginImage:         UniformMargin(15),
		BorderWidth:         4,
		SelectedBorderWidth: 6,
		HoverColor:          "rgba(0, 0, 0, 1)",
		SelectedColor:       "rgba(105, 105, 105, 1)",
		PreSort:             true,
	}
}

// Validate checks that the options describe drawable geometry.
func (o Options) Validate() error {
	if !(o.BorderWidth > 0) || math.IsInf(o.BorderWidth, 0) {
		return fmt.Errorf("border width must be positive, got %v", o.BorderWidth)
	}
	if !(o.SelectedBorderWidth > 0) || math.IsInf(o.SelectedBorderWidth, 0) {
		return fmt.Errorf("selected border width must be positive, got %v", o.SelectedBorderWidth)
	}
	for name, m := range map[string]Margin{"chunk": o.MarginChunk, "image": o.MarginImage} {
		for _, v := range []float64{m.Top, m.Left, m.Bottom, m.Right} {
			if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("%s margin must be finite and non-negative", name)
			}
		}
	}
	return nil
}
