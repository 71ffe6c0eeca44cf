package qr

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"

	"github.com/skip2/go-qrcode"
)

const pairingRef = "2@AbCdEf123,XyZ456==,MTIzNDU2Nzg5MA==,c2VjcmV0"

func TestModules_PNGMatchesBitmap(t *testing.T) {
	q, err := qrcode.New(pairingRef, qrcode.Medium)
	if err != nil {
		t.Fatal(err)
	}
	q.DisableBorder = true
	png, err := q.PNG(8 * len(q.Bitmap()))
	if err != nil {
		t.Fatal(err)
	}
	want := q.Bitmap()

	b64 := base64.StdEncoding.EncodeToString(png)
	for name, payload := range map[string]string{
		"plain":    b64,
		"data url": dataURLPrefix + b64,
		"commas":   b64[:10] + "," + b64[10:],
	} {
		t.Run(name, func(t *testing.T) {
			got, err := Modules(payload)
			if err != nil {
				t.Fatalf("Modules: %v", err)
			}
			if len(got) != len(want)+2*quietZone {
				t.Fatalf("size = %d, want %d", len(got), len(want)+2*quietZone)
			}
			for y := range want {
				for x := range want[y] {
					if got[y+quietZone][x+quietZone] != want[y][x] {
						t.Fatalf("module (%d,%d) mismatch", x, y)
					}
				}
			}
		})
	}
}

func TestModules_RawString(t *testing.T) {
	grid, err := Modules(pairingRef)
	if err != nil {
		t.Fatal(err)
	}
	if len(grid) < 21 || len(grid) != len(grid[0]) {
		t.Errorf("grid %dx%d", len(grid), len(grid[0]))
	}
}

func TestModules_Empty(t *testing.T) {
	if _, err := Modules("  "); !errors.Is(err, ErrEmpty) {
		t.Errorf("err = %v", err)
	}
}

func TestRender_HalfBlockRows(t *testing.T) {
	out, err := Render(pairingRef)
	if err != nil {
		t.Fatal(err)
	}
	grid, _ := Modules(pairingRef)
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if want := (len(grid) + 1) / 2; len(lines) != want {
		t.Errorf("lines = %d, want %d", len(lines), want)
	}
}

func TestHalfBlocks(t *testing.T) {
	grid := [][]bool{
		{false, true, false, true},
		{false, false, true, true},
	}
	if got := halfBlocks(grid); got != "█▄▀ \n" {
		t.Errorf("halfBlocks = %q", got)
	}
}
