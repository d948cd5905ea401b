package storage

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"time"

	"github.com/disintegration/imaging"
	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

const jpegQuality = 80

// ErrNotImage is returned when uploaded bytes cannot be decoded as an image.
var ErrNotImage = errors.New("file is not a supported image")

// ProcessImage decodes r, shrinks it to fit maxWidth and re-encodes it as JPEG.
// Images narrower than maxWidth keep their size.
func ProcessImage(r io.Reader, maxWidth int) ([]byte, error) {
	src, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, ErrNotImage
	}

	if maxWidth > 0 && src.Bounds().Dx() > maxWidth {
		src = imaging.Resize(src, maxWidth, 0, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, flatten(src), &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, errors.Wrap(err, "encode jpeg")
	}
	return buf.Bytes(), nil
}

// flatten paints transparent pixels white so PNG logos don't turn black.
func flatten(img image.Image) image.Image {
	bg := imaging.New(img.Bounds().Dx(), img.Bounds().Dy(), image.White.C)
	return imaging.Overlay(bg, img, image.Pt(0, 0), 1.0)
}

// Images processes uploads and saves them on a Disk.
type Images struct {
	disk     Disk
	maxWidth int
}

// NewImages returns an uploader writing to disk.
func NewImages(disk Disk, maxWidth int) *Images {
	return &Images{disk: disk, maxWidth: maxWidth}
}

// Save processes r and stores it under dir, returning the public URL.
func (i *Images) Save(ctx context.Context, dir string, r io.Reader) (string, error) {
	data, err := ProcessImage(r, i.maxWidth)
	if err != nil {
		return "", err
	}

	path := fmt.Sprintf("%s/%s/%s.jpg", dir, time.Now().UTC().Format("2006/01"), uuid.NewString())
	if err := i.disk.Put(ctx, path, data, "image/jpeg"); err != nil {
		return "", err
	}
	return i.disk.URL(path), nil
}

// Remove deletes the file behind url when it belongs to this disk.
func (i *Images) Remove(ctx context.Context, url string) error {
	path, ok := PathFromURL(i.disk, url)
	if !ok {
		return nil
	}
	return i.disk.Delete(ctx, path)
}
