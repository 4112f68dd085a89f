package render

import (
	"image"
	"image/color"
	"unicode/utf8"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	placeholderBackground = color.NRGBA{50, 50, 50, 255}
	errorBackground       = color.NRGBA{255, 240, 240, 255}
	errorText             = color.NRGBA{200, 0, 0, 255}
	hintText              = color.NRGBA{0, 0, 0, 255}
)

// maxErrorLine bounds the message line so it fits an 800 pixel wide image
const maxErrorLine = 100

func drawText(img *image.NRGBA, x, y int, text string, c color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y+13),
	}
	d.DrawString(text)
}

// truncateLine shortens s to at most n runes, marking the cut with "..."
func truncateLine(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n-3]) + "..."
}

// Placeholder is the 400x300 image saved when the 3D preview cannot be rendered
func Placeholder() image.Image {
	img := imaging.New(400, 300, placeholderBackground)
	drawText(img, 50, 100, "3D STL Model Generated", color.White)
	drawText(img, 50, 130, "Download STL to view in 3D", color.NRGBA{200, 200, 200, 255})
	return img
}

// ErrorImage is the 800x600 image shown in place of any artifact when a
// conversion fails. The message is truncated to one line.
func ErrorImage(title, message string, hints ...string) image.Image {
	img := imaging.New(800, 600, errorBackground)
	drawText(img, 50, 50, title, errorText)
	drawText(img, 50, 80, truncateLine(message, maxErrorLine), errorText)
	for i, h := range hints {
		drawText(img, 50, 120+30*i, h, hintText)
	}
	return img
}

// SaveErrorImage writes ErrorImage to path; the format follows the extension
func SaveErrorImage(path, title string, cause error, hints ...string) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return imaging.Save(ErrorImage(title, msg, hints...), path)
}
