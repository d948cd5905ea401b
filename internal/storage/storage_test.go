package storage

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.NRGBA{R: 200, G: 100, B: 50, A: 255})
		}
	}

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestProcessImage_Resizes(t *testing.T) {
	out, err := ProcessImage(bytes.NewReader(pngBytes(t, 1600, 400)), 800)
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 800, cfg.Width)
	assert.Equal(t, 200, cfg.Height)
}

func TestProcessImage_KeepsSmallImages(t *testing.T) {
	out, err := ProcessImage(bytes.NewReader(pngBytes(t, 300, 200)), 800)
	require.NoError(t, err)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(out))
	require.NoError(t, err)
	assert.Equal(t, 300, cfg.Width)
}

func TestProcessImage_RejectsGarbage(t *testing.T) {
	_, err := ProcessImage(strings.NewReader("not an image"), 800)
	require.ErrorIs(t, err, ErrNotImage)
}

func TestLocalDisk_PutDelete(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	disk, err := NewLocal(root, "http://localhost:8080/uploads/")
	require.NoError(t, err)

	require.NoError(t, disk.Put(ctx, "products/a.jpg", []byte("data"), "image/jpeg"))
	got, err := os.ReadFile(filepath.Join(root, "products", "a.jpg"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))

	assert.Equal(t, "http://localhost:8080/uploads/products/a.jpg", disk.URL("products/a.jpg"))

	require.NoError(t, disk.Delete(ctx, "products/a.jpg"))
	require.NoError(t, disk.Delete(ctx, "products/a.jpg"))
	_, err = os.Stat(filepath.Join(root, "products", "a.jpg"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalDisk_RejectsTraversal(t *testing.T) {
	disk, err := NewLocal(t.TempDir(), "http://localhost/uploads")
	require.NoError(t, err)

	err = disk.Put(context.Background(), "../escape.jpg", []byte("x"), "")
	require.Error(t, err)
}

func TestImages_SaveRemove(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()

	disk, err := NewLocal(root, "http://localhost/uploads")
	require.NoError(t, err)
	images := NewImages(disk, 800)

	url, err := images.Save(ctx, "banners", bytes.NewReader(pngBytes(t, 100, 100)))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "http://localhost/uploads/banners/"))

	path, ok := PathFromURL(disk, url)
	require.True(t, ok)
	_, err = os.Stat(filepath.Join(root, filepath.FromSlash(path)))
	require.NoError(t, err)

	require.NoError(t, images.Remove(ctx, url))
	_, err = os.Stat(filepath.Join(root, filepath.FromSlash(path)))
	assert.True(t, os.IsNotExist(err))

	assert.NoError(t, images.Remove(ctx, "https://elsewhere.example.com/a.jpg"))
}
