package image

import (
	"image"
	"sync/atomic"
)

// Bitmap is a decoded image with a reference count.
// It starts with one reference. Once the count drops to zero the bitmap is freed
// and can not be used again, even by holders that still point to it.
type Bitmap struct {
	img    image.Image
	width  int
	height int
	refs   atomic.Int32
}

// NewBitmap wraps a decoded image, the caller holds the first reference
func NewBitmap(img image.Image) *Bitmap {
	bounds := img.Bounds()
	bitmap := &Bitmap{
		img:    img,
		width:  bounds.Dx(),
		height: bounds.Dy(),
	}
	bitmap.refs.Store(1)
	return bitmap
}

// Use takes a reference, returns false if the bitmap is already freed
func (bitmap *Bitmap) Use() bool {
	for {
		refs := bitmap.refs.Load()
		if refs <= 0 {
			return false
		}

		if bitmap.refs.CompareAndSwap(refs, refs+1) {
			return true
		}
	}
}

// Free drops a reference
func (bitmap *Bitmap) Free() {
	for {
		refs := bitmap.refs.Load()
		if refs <= 0 {
			return
		}

		if bitmap.refs.CompareAndSwap(refs, refs-1) {
			return
		}
	}
}

// Usable returns true if the bitmap is not freed
func (bitmap *Bitmap) Usable() bool {
	return bitmap.refs.Load() > 0
}

// References returns the current reference count
func (bitmap *Bitmap) References() int {
	return int(bitmap.refs.Load())
}

// Image returns the decoded image, nil once freed
func (bitmap *Bitmap) Image() image.Image {
	if !bitmap.Usable() {
		return nil
	}
	return bitmap.img
}

// Width returns width in pixels
func (bitmap *Bitmap) Width() int {
	return bitmap.width
}

// Height returns height in pixels
func (bitmap *Bitmap) Height() int {
	return bitmap.height
}

// ByteSize returns the memory footprint of decoded pixels, 4 bytes per pixel
func (bitmap *Bitmap) ByteSize() int64 {
	return int64(bitmap.width) * int64(bitmap.height) * 4
}

// SizeKiB is the cache size unit of a bitmap
func SizeKiB(bitmap *Bitmap) float64 {
	return float64(bitmap.ByteSize()) / 1024
}
