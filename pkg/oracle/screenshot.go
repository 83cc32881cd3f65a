/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: screenshot.go
Description: Visual comparison of two screenshots. Images are cropped to drop the status bar
(top 4%) and the navigation bar (below y=1776), converted to grayscale and compared pixel by
pixel against a percentage threshold of the cropped area.
*/

package oracle

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"os"
)

const (
	// StatusBarRatio is the fraction of the height removed from the top
	StatusBarRatio = 0.04
	// NavigationBarTop is the first row removed at the bottom
	NavigationBarTop = 1776
	// DefaultThreshold is the percentage of changed pixels tolerated
	DefaultThreshold = 0.15
)

// Screenshot is a cropped grayscale capture
type Screenshot struct {
	img *image.Gray
}

// DecodeScreenshot decodes a PNG capture, crops it and converts it to grayscale
func DecodeScreenshot(data []byte) (*Screenshot, error) {
	src, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	return FromImage(src), nil
}

// FromImage crops and converts an already decoded image
func FromImage(src image.Image) *Screenshot {
	b := src.Bounds()
	top := b.Min.Y + int(float64(b.Dy())*StatusBarRatio)
	bottom := b.Min.Y + NavigationBarTop
	if bottom > b.Max.Y {
		bottom = b.Max.Y
	}
	if bottom < top {
		bottom = top
	}
	crop := image.Rect(b.Min.X, top, b.Max.X, bottom)
	gray := image.NewGray(image.Rect(0, 0, crop.Dx(), crop.Dy()))
	draw.Draw(gray, gray.Bounds(), src, crop.Min, draw.Src)
	return &Screenshot{img: gray}
}

// Size returns the cropped width and height
func (s *Screenshot) Size() (int, int) {
	return s.img.Bounds().Dx(), s.img.Bounds().Dy()
}

// DiffersFrom reports whether more than threshold percent of the pixels changed
func (s *Screenshot) DiffersFrom(other *Screenshot, threshold float64) (bool, error) {
	if other == nil {
		return false, fmt.Errorf("no screenshot to compare with")
	}
	w, h := s.Size()
	ow, oh := other.Size()
	if w != ow || h != oh {
		return false, fmt.Errorf("screenshot sizes differ: %dx%d vs %dx%d", w, h, ow, oh)
	}
	changed := 0
	for i := range s.img.Pix {
		if s.img.Pix[i] != other.img.Pix[i] {
			changed++
		}
	}
	return float64(changed) > float64(h*w)*threshold/100, nil
}

// WritePNG stores the cropped capture
func (s *Screenshot) WritePNG(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()
	if err := png.Encode(f, s.img); err != nil {
		return fmt.Errorf("failed to encode %s: %w", path, err)
	}
	return nil
}
