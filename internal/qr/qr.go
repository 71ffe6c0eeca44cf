// Package qr turns pairing QR payloads into text that renders in a terminal.
//
// The backend sends the QR as a base64 PNG (sometimes with stray commas or a
// data URL prefix). Anything that is not a decodable image is treated as the
// raw pairing string and encoded locally.
package qr

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/skip2/go-qrcode"
)

const (
	dataURLPrefix = "data:image/png;base64,"
	// Larger images are scaled down before module detection.
	maxImageSide = 1024
	quietZone    = 2
)

var ErrEmpty = errors.New("empty qr payload")

// Modules decodes payload into a module grid (true is a dark module) with a
// quiet zone around it.
func Modules(payload string) ([][]bool, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, ErrEmpty
	}
	if img, err := decodePNG(payload); err == nil {
		return sample(img)
	}
	q, err := qrcode.New(payload, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("encode qr: %w", err)
	}
	return q.Bitmap(), nil
}

// Render returns payload as half-block text. Light modules are drawn, which
// reads correctly on dark terminal backgrounds.
func Render(payload string) (string, error) {
	grid, err := Modules(payload)
	if err != nil {
		return "", err
	}
	return halfBlocks(grid), nil
}

// Clean strips the data URL prefix and the commas some backends leave in the
// base64 body.
func Clean(payload string) string {
	payload = strings.TrimPrefix(strings.TrimSpace(payload), dataURLPrefix)
	return strings.ReplaceAll(payload, ",", "")
}

func decodePNG(payload string) (image.Image, error) {
	raw, err := base64.StdEncoding.DecodeString(Clean(payload))
	if err != nil {
		return nil, err
	}
	img, err := imaging.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	if b.Dx() > maxImageSide || b.Dy() > maxImageSide {
		img = imaging.Fit(img, maxImageSide, maxImageSide, imaging.NearestNeighbor)
	}
	return imaging.Grayscale(img), nil
}

func dark(img image.Image, x, y int) bool {
	r, g, b, _ := img.At(x, y).RGBA()
	return (r+g+b)/3 < 0x8000
}

// sample locates the symbol, derives the module size from the top-left
// finder pattern (7 modules wide) and reads one pixel per module.
func sample(img image.Image) ([][]bool, error) {
	b := img.Bounds()
	minX, minY, maxX, maxY := b.Max.X, b.Max.Y, b.Min.X-1, b.Min.Y-1
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			if !dark(img, x, y) {
				continue
			}
			minX, minY = min(minX, x), min(minY, y)
			maxX, maxY = max(maxX, x), max(maxY, y)
		}
	}
	if maxX < minX {
		return nil, errors.New("qr image has no dark modules")
	}

	run := 0
	for x := minX; x <= maxX && dark(img, x, minY); x++ {
		run++
	}
	module := float64(run) / 7
	if module < 1 {
		module = 1
	}
	n := int(math.Round(float64(maxX-minX+1) / module))
	if n < 21 {
		return nil, fmt.Errorf("qr image too small: %d modules", n)
	}

	size := n + 2*quietZone
	grid := make([][]bool, size)
	for i := range grid {
		grid[i] = make([]bool, size)
	}
	for row := 0; row < n; row++ {
		for col := 0; col < n; col++ {
			x := minX + int((float64(col)+0.5)*module)
			y := minY + int((float64(row)+0.5)*module)
			grid[row+quietZone][col+quietZone] = dark(img, min(x, maxX), min(y, maxY))
		}
	}
	return grid, nil
}

func halfBlocks(grid [][]bool) string {
	var sb strings.Builder
	for y := 0; y < len(grid); y += 2 {
		for x := range grid[y] {
			topLight := !grid[y][x]
			bottomLight := y+1 >= len(grid) || !grid[y+1][x]
			switch {
			case topLight && bottomLight:
				sb.WriteString("█")
			case topLight:
				sb.WriteString("▀")
			case bottomLight:
				sb.WriteString("▄")
			default:
				sb.WriteString(" ")
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
