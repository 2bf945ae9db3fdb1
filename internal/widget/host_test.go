package widget

import (
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"islandbridge/internal/eventbus"
)

func solid(c color.Color) image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestCaptureStoresAndStreams(t *testing.T) {
	bus := eventbus.New()
	events, unsub := bus.Subscribe(4)
	defer unsub()

	h := NewHost(WithBus(bus))
	h.Capture(9001, Snapshot{Image: solid(color.White)})
	h.Capture(9002, Snapshot{Image: solid(color.Black)})

	assert.Equal(t, 9001, <-h.Updates())
	assert.Equal(t, 9002, <-h.Updates())

	s, ok := h.Latest(9001)
	require.True(t, ok)
	assert.False(t, s.CapturedAt.IsZero())

	e := <-events
	assert.Equal(t, eventbus.WidgetUpdated, e.Type)
	assert.Equal(t, 9001, e.Data)

	h.Forget(9001)
	_, ok = h.Latest(9001)
	assert.False(t, ok)
}

func TestCaptureDropsWhenStreamFull(t *testing.T) {
	h := NewHost(WithBuffer(1))
	h.Capture(1, Snapshot{})
	h.Capture(2, Snapshot{})

	assert.Equal(t, 1, <-h.Updates())
	_, ok := h.Latest(2)
	assert.True(t, ok, "snapshot is kept even when the update is dropped")
}

func TestCloseEndsStream(t *testing.T) {
	h := NewHost()
	h.Close()
	h.Close()

	_, ok := <-h.Updates()
	assert.False(t, ok)

	h.Capture(3, Snapshot{})
	_, ok = h.Latest(3)
	assert.True(t, ok)
}

func TestCaptureID(t *testing.T) {
	id, ok := captureID("/tmp/x/9003.png")
	assert.True(t, ok)
	assert.Equal(t, 9003, id)

	for _, name := range []string{"a.png", "9003.jpg", "-1.png", "9003"} {
		_, ok := captureID(name)
		assert.False(t, ok, name)
	}
}

func writePNG(t *testing.T, path string, img image.Image) {
	t.Helper()
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	require.NoError(t, os.Rename(tmp, path))
}

func TestCaptureDirLoadsExistingAndNewFiles(t *testing.T) {
	dir := t.TempDir()
	writePNG(t, filepath.Join(dir, "9000.png"), solid(color.White))

	h := NewHost()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.Start(ctx, dir) }()

	select {
	case id := <-h.Updates():
		assert.Equal(t, 9000, id)
	case <-time.After(3 * time.Second):
		t.Fatal("existing capture not loaded")
	}

	writePNG(t, filepath.Join(dir, "9004.png"), solid(color.Black))
	deadline := time.After(3 * time.Second)
	for {
		select {
		case id := <-h.Updates():
			if id != 9004 {
				continue
			}
			s, ok := h.Latest(9004)
			require.True(t, ok)
			assert.Equal(t, 4, s.Image.Bounds().Dx())
			cancel()
			require.NoError(t, <-done)
			return
		case <-deadline:
			cancel()
			t.Fatal("new capture not loaded")
		}
	}
}
