// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"time"

	"github.com/eyevinn-osaas/strom-go/internal/pipeline/framework"
)

// DefaultThumbnailTimeout bounds how long CaptureThumbnail waits for a
// frame before giving up.
const DefaultThumbnailTimeout = 2 * time.Second

// thumbnailJPEGQuality is the encoder quality for captured thumbnails.
const thumbnailJPEGQuality = 85

// ErrThumbnailTimeout is returned when no frame arrived within the capture
// timeout. The probe is removed before returning; no resources remain
// attached to the element.
var ErrThumbnailTimeout = errors.New("manager: thumbnail capture timed out")

// CaptureThumbnail pulls a single frame from elementID, scales it so its
// width does not exceed maxWidth (preserving aspect ratio; maxWidth <= 0
// keeps the source size), and returns it JPEG-encoded. The element must
// implement framework.FrameProvider; waiting is bounded by timeout
// (DefaultThumbnailTimeout if zero).
func (m *Manager) CaptureThumbnail(ctx context.Context, elementID string, timeout time.Duration, maxWidth int) ([]byte, error) {
	m.mu.Lock()
	elem, ok := m.pipeline.Element(elementID)
	m.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("manager: unknown element %q", elementID)
	}
	provider, ok := elem.(framework.FrameProvider)
	if !ok {
		return nil, fmt.Errorf("manager: element %q cannot provide frames", elementID)
	}

	if timeout <= 0 {
		timeout = DefaultThumbnailTimeout
	}
	pullCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	frame, err := provider.PullFrame(pullCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrThumbnailTimeout
		}
		return nil, fmt.Errorf("manager: pull frame from %q: %w", elementID, err)
	}
	if frame.Width <= 0 || frame.Height <= 0 || len(frame.RGB) < frame.Width*frame.Height*3 {
		return nil, fmt.Errorf("manager: element %q produced a malformed frame", elementID)
	}

	img := scaleFrame(frame, maxWidth)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: thumbnailJPEGQuality}); err != nil {
		return nil, fmt.Errorf("manager: encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}

// scaleFrame converts a packed-RGB frame to an image scaled to at most
// maxWidth, using nearest-neighbor sampling.
func scaleFrame(f framework.Frame, maxWidth int) image.Image {
	outW, outH := f.Width, f.Height
	if maxWidth > 0 && f.Width > maxWidth {
		outW = maxWidth
		outH = f.Height * maxWidth / f.Width
		if outH < 1 {
			outH = 1
		}
	}

	img := image.NewRGBA(image.Rect(0, 0, outW, outH))
	for y := 0; y < outH; y++ {
		srcY := y * f.Height / outH
		for x := 0; x < outW; x++ {
			srcX := x * f.Width / outW
			src := (srcY*f.Width + srcX) * 3
			dst := img.PixOffset(x, y)
			img.Pix[dst] = f.RGB[src]
			img.Pix[dst+1] = f.RGB[src+1]
			img.Pix[dst+2] = f.RGB[src+2]
			img.Pix[dst+3] = 0xff
		}
	}
	return img
}
