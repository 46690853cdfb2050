// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package manager

import (
	"bytes"
	"context"
	"image/jpeg"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/eyevinn-osaas/strom-go/internal/pipeline/compiler"
	"github.com/eyevinn-osaas/strom-go/internal/pipeline/framework"
)

func videoGraph(t *testing.T) (*compiler.CompiledGraph, *framework.MemoryElement) {
	t.Helper()
	factory := framework.NewMemoryFactory()
	elem, err := factory.NewElement("f:videosink", "appsink")
	require.NoError(t, err)
	return &compiler.CompiledGraph{
		FlowID:   "f",
		Elements: map[string]framework.Element{"f:videosink": elem},
	}, elem.(*framework.MemoryElement)
}

func solidFrame(w, h int, r, g, b byte) framework.Frame {
	rgb := make([]byte, w*h*3)
	for i := 0; i < len(rgb); i += 3 {
		rgb[i], rgb[i+1], rgb[i+2] = r, g, b
	}
	return framework.Frame{Width: w, Height: h, RGB: rgb}
}

func TestCaptureThumbnail_EncodesScaledJPEG(t *testing.T) {
	graph, elem := videoGraph(t)
	mgr, err := New(graph, framework.NewMemoryFactory(), nil, nil, nil)
	require.NoError(t, err)

	elem.SeedFrame(solidFrame(640, 360, 200, 30, 30))

	data, err := mgr.CaptureThumbnail(context.Background(), "f:videosink", time.Second, 160)
	require.NoError(t, err)

	img, decodeErr := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, decodeErr)
	require.Equal(t, 160, img.Bounds().Dx())
	require.Equal(t, 90, img.Bounds().Dy())
}

func TestCaptureThumbnail_KeepsSizeWithoutMaxWidth(t *testing.T) {
	graph, elem := videoGraph(t)
	mgr, err := New(graph, framework.NewMemoryFactory(), nil, nil, nil)
	require.NoError(t, err)

	elem.SeedFrame(solidFrame(64, 48, 0, 0, 255))

	data, err := mgr.CaptureThumbnail(context.Background(), "f:videosink", time.Second, 0)
	require.NoError(t, err)

	img, decodeErr := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, decodeErr)
	require.Equal(t, 64, img.Bounds().Dx())
	require.Equal(t, 48, img.Bounds().Dy())
}

func TestCaptureThumbnail_TimesOutWithoutFrame(t *testing.T) {
	graph, _ := videoGraph(t)
	mgr, err := New(graph, framework.NewMemoryFactory(), nil, nil, nil)
	require.NoError(t, err)

	_, err = mgr.CaptureThumbnail(context.Background(), "f:videosink", 50*time.Millisecond, 160)
	require.ErrorIs(t, err, ErrThumbnailTimeout)
}

// plainElement is an Element without frame support, for exercising the
// provider check.
type plainElement struct{ id string }

func (e *plainElement) ID() string                             { return e.id }
func (e *plainElement) Factory() string                        { return "volume" }
func (e *plainElement) SetProperty(string, any) error          { return nil }
func (e *plainElement) GetProperty(string) (any, bool)         { return nil, false }
func (e *plainElement) RequestPad(string) (string, error)      { return "", nil }
func (e *plainElement) Pads() []framework.PadInfo              { return nil }

func TestCaptureThumbnail_NonVideoElementFails(t *testing.T) {
	elem := &plainElement{id: "f:gain"}
	graph := &compiler.CompiledGraph{FlowID: "f", Elements: map[string]framework.Element{"f:gain": elem}}
	mgr, err := New(graph, framework.NewMemoryFactory(), nil, nil, nil)
	require.NoError(t, err)

	_, err = mgr.CaptureThumbnail(context.Background(), "f:gain", time.Second, 160)
	require.Error(t, err)
	require.Contains(t, err.Error(), "cannot provide frames")
}
