package vision

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	jpegQuality = 80
	lineWidth   = 2
)

var (
	boxColor   = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	labelColor = color.RGBA{R: 0, G: 255, B: 0, A: 255}
)

// Annotate decodes a JPEG frame, draws the face box and label, and
// re-encodes it. A nil face leaves only the label at the top left.
func Annotate(src []byte, face *Box, label string) ([]byte, error) {
	decoded, err := jpeg.Decode(bytes.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}

	img := image.NewRGBA(decoded.Bounds())
	draw.Draw(img, img.Bounds(), decoded, decoded.Bounds().Min, draw.Src)

	annotate(img, face, label)

	return encode(img)
}

// Blank returns a white JPEG of the given size, shown while the camera is off.
func Blank(width, height int) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	return encode(img)
}

func annotate(img *image.RGBA, face *Box, label string) {
	labelAt := image.Pt(10, 20)

	if face != nil {
		r := image.Rect(face.X, face.Y, face.X+face.Width, face.Y+face.Height).Intersect(img.Bounds())
		if !r.Empty() {
			drawRect(img, r, boxColor)
			labelAt = image.Pt(r.Min.X, r.Min.Y-10)
			if labelAt.Y < 13 {
				labelAt.Y = r.Max.Y + 15
			}
		}
	}

	if label == "" {
		return
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(labelColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(labelAt.X, labelAt.Y),
	}
	d.DrawString(label)
}

// drawRect outlines r with lines lineWidth pixels thick, inside r.
func drawRect(img *image.RGBA, r image.Rectangle, c color.Color) {
	src := image.NewUniform(c)
	w := min(lineWidth, r.Dx(), r.Dy())

	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+w),
		image.Rect(r.Min.X, r.Max.Y-w, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+w, r.Max.Y),
		image.Rect(r.Max.X-w, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(img, e, src, image.Point{}, draw.Src)
	}
}

func encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encoding frame: %w", err)
	}
	return buf.Bytes(), nil
}
