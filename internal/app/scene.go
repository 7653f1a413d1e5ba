package app

import (
	"fmt"
	"image/color"

	"github.com/the-cubic-cat/sfera/internal/geom"
	"github.com/the-cubic-cat/sfera/internal/world"
)

// DefaultScene places two balls inside a 10x10 box centred on the origin.
func DefaultScene(w *world.World) error {
	if err := w.SetBounds(geom.R(-5, -5, 10, 10), 0); err != nil {
		return fmt.Errorf("bounds: %w", err)
	}
	balls := []world.BallSpec{
		{
			Radius:   0.5,
			Mass:     1,
			Position: geom.V(-3, 0),
			Velocity: geom.V(0.7, 2.8),
			Color:    color.RGBA{R: 255, A: 255},
			Tags:     []string{"red"},
		},
		{
			Radius:   0.5,
			Mass:     1,
			Position: geom.V(3, 0),
			Velocity: geom.V(-1.76, 2),
			Color:    color.RGBA{G: 255, A: 255},
			Tags:     []string{"green"},
		},
	}
	for _, spec := range balls {
		if _, err := w.NewBall(spec, 0); err != nil {
			return fmt.Errorf("ball at %v: %w", spec.Position, err)
		}
	}
	return nil
}
