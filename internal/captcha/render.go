package captcha

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"math"
	mrand "math/rand/v2"
	"strings"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/f64"
	"golang.org/x/image/math/fixed"
)

// Renderer draws challenge text onto a noisy PNG.
type Renderer struct {
	Width      int
	Height     int
	NoisePts   int
	NoiseLines int
	GlyphScale float64
}

func NewRenderer() *Renderer {
	return &Renderer{
		Width:      200,
		Height:     80,
		NoisePts:   50,
		NoiseLines: 5,
		GlyphScale: 3,
	}
}

// Render returns text as a data:image/png;base64 URL.
func (r *Renderer) Render(text string) (string, error) {
	canvas := image.NewRGBA(image.Rect(0, 0, r.Width, r.Height))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)

	for i := 0; i < r.NoisePts; i++ {
		canvas.Set(mrand.IntN(r.Width), mrand.IntN(r.Height), color.RGBA{
			R: uint8(mrand.IntN(256)), G: uint8(mrand.IntN(256)), B: uint8(mrand.IntN(256)), A: 255,
		})
	}

	for i := 0; i < r.NoiseLines; i++ {
		c := color.RGBA{
			R: uint8(100 + mrand.IntN(101)), G: uint8(100 + mrand.IntN(101)), B: uint8(100 + mrand.IntN(101)), A: 255,
		}
		drawLine(canvas,
			mrand.IntN(r.Width), mrand.IntN(r.Height),
			mrand.IntN(r.Width), mrand.IntN(r.Height), c)
	}

	// basicfont has no multiplication sign
	glyphs := []rune(strings.ReplaceAll(text, "×", "x"))
	r.drawGlyphs(canvas, glyphs)

	var buf bytes.Buffer
	if err := png.Encode(&buf, canvas); err != nil {
		return "", err
	}

	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (r *Renderer) drawGlyphs(canvas *image.RGBA, glyphs []rune) {
	if len(glyphs) == 0 {
		return
	}

	face := basicfont.Face7x13
	gw, gh := face.Advance, face.Height
	scale := r.GlyphScale

	step := float64(r.Width-20) / float64(len(glyphs))
	if maxStep := float64(gw)*scale + 8; step > maxStep {
		step = maxStep
	}
	startX := (float64(r.Width) - step*float64(len(glyphs))) / 2

	for i, ch := range glyphs {
		if ch == ' ' {
			continue
		}

		glyph := image.NewRGBA(image.Rect(0, 0, gw, gh))
		d := &font.Drawer{
			Dst: glyph,
			Src: image.NewUniform(color.RGBA{
				R: uint8(mrand.IntN(101)), G: uint8(mrand.IntN(101)), B: uint8(mrand.IntN(101)), A: 255,
			}),
			Face: face,
			Dot:  fixed.P(0, face.Ascent),
		}
		d.DrawString(string(ch))

		angle := float64(mrand.IntN(31)-15) * math.Pi / 180
		px := startX + step*float64(i) + step/2
		py := float64(r.Height)/2 + float64(mrand.IntN(11)-5)

		sin, cos := math.Sincos(angle)
		a, b := scale*cos, -scale*sin
		dd, e := scale*sin, scale*cos
		cx, cy := float64(gw)/2, float64(gh)/2

		m := f64.Aff3{
			a, b, px - a*cx - b*cy,
			dd, e, py - dd*cx - e*cy,
		}
		draw.NearestNeighbor.Transform(canvas, m, glyph, glyph.Bounds(), draw.Over, nil)
	}
}

// drawLine rasterises a one-pixel line with Bresenham's algorithm.
func drawLine(img *image.RGBA, x0, y0, x1, y1 int, c color.Color) {
	dx := abs(x1 - x0)
	dy := -abs(y1 - y0)
	sx, sy := 1, 1
	if x0 > x1 {
		sx = -1
	}
	if y0 > y1 {
		sy = -1
	}
	err := dx + dy

	for {
		img.Set(x0, y0, c)
		if x0 == x1 && y0 == y1 {
			return
		}
		e2 := 2 * err
		if e2 >= dy {
			err += dy
			x0 += sx
		}
		if e2 <= dx {
			err += dx
			y0 += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
