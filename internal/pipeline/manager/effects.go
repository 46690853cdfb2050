// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/eyevinn-osaas/strom-go/internal/pipeline/framework"
)

// animationTick is the interval between interpolation steps when animating
// compositor pad geometry.
const animationTick = 20 * time.Millisecond

// PadFrameKeyframe is one endpoint of a compositor pad animation: the
// geometry of a video input on the composited canvas.
type PadFrameKeyframe struct {
	XPos   float64 `json:"xpos"`
	YPos   float64 `json:"ypos"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// AnimateCompositorPad interpolates a compositor input pad's
// xpos/ypos/width/height linearly between from and to over duration,
// stepping at the animation tick. Pad properties are addressed in the
// framework's "pad::property" form on the owning element. The call blocks
// until the animation finishes or ctx is canceled; callers wanting a
// fire-and-forget transition run it on their own goroutine.
func (m *Manager) AnimateCompositorPad(ctx context.Context, elementID, padName string, from, to PadFrameKeyframe, duration time.Duration) error {
	m.mu.Lock()
	elem, ok := m.pipeline.Element(elementID)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("manager: unknown element %q", elementID)
	}
	if duration <= 0 {
		return applyPadFrame(elem, padName, to)
	}

	steps := int(duration / animationTick)
	if steps < 1 {
		steps = 1
	}
	ticker := time.NewTicker(animationTick)
	defer ticker.Stop()

	for step := 1; step <= steps; step++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		t := float64(step) / float64(steps)
		frame := PadFrameKeyframe{
			XPos:   lerp(from.XPos, to.XPos, t),
			YPos:   lerp(from.YPos, to.YPos, t),
			Width:  lerp(from.Width, to.Width, t),
			Height: lerp(from.Height, to.Height, t),
		}
		if err := applyPadFrame(elem, padName, frame); err != nil {
			return err
		}
	}
	return nil
}

func applyPadFrame(elem framework.Element, padName string, f PadFrameKeyframe) error {
	for prop, v := range map[string]float64{
		"xpos":   f.XPos,
		"ypos":   f.YPos,
		"width":  f.Width,
		"height": f.Height,
	} {
		if err := elem.SetProperty(padName+"::"+prop, int(v)); err != nil {
			return fmt.Errorf("manager: animate %s::%s: %w", padName, prop, err)
		}
	}
	return nil
}

func lerp(a, b, t float64) float64 { return a + (b-a)*t }
