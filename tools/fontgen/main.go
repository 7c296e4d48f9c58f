// Command fontgen is a host-side companion tool: it rasterises a TTF
// font's glyph set (and, optionally, a splash-screen image) into a flat
// Go source file of byte arrays that the freestanding kernel build
// embeds directly — the kernel itself never touches a font rasteriser or
// an image codec. Font rendering stays an out-of-scope external
// collaborator, specified only by the byte array it hands the core.
//
// Follows tools/imageconvert's shape: a flag-parsed, single-main.go CLI
// that decodes one host-side asset and writes a
// binary kernel artifact, with the same error-then-os.Exit(1) idiom
// throughout. Where imageconvert writes a raw binary file of ARGB8888
// pixels, fontgen additionally renders that layout as literal Go source
// (a //go:embed'able .go file is unnecessary here since the bytes need
// to be a named array the kernel package references directly), using
// github.com/golang/freetype to rasterise glyphs, github.com/fogleman/gg
// to composite the optional splash image, and golang.org/x/image/font
// for the face metrics driving glyph placement.
package main

import (
	"flag"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"strings"

	"github.com/fogleman/gg"
	"github.com/golang/freetype"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// glyphSet is the panic/diagnostic console's character repertoire: the
// printable ASCII range is enough for klog's own %d/%x/%s/%p output and
// a kernel panic screen (it is not a general-purpose text renderer).
const glyphSet = " !\"#$%&'()*+,-./0123456789:;<=>?@ABCDEFGHIJKLMNOPQRSTUVWXYZ[\\]^_`abcdefghijklmnopqrstuvwxyz{|}~"

func main() {
	var (
		fontPath   = flag.String("font", "", "path to a TTF font file")
		splashPath = flag.String("splash", "", "optional path to a splash-screen image")
		outPath    = flag.String("out", "", "output .go file path")
		pkgName    = flag.String("package", "fontdata", "package name for the generated file")
		glyphPx    = flag.Int("size", 16, "glyph raster size in pixels")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: fontgen -font <ttf> -out <file.go> [-splash <image>] [-package name] [-size px]\n")
		fmt.Fprintf(os.Stderr, "Rasterises a font's glyph bitmaps (and an optional splash image) into a Go source file for kernel embedding.\n")
	}
	flag.Parse()

	if *fontPath == "" || *outPath == "" {
		flag.Usage()
		os.Exit(1)
	}

	glyphs, err := rasterizeGlyphs(*fontPath, *glyphPx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fontgen: rasterizing glyphs: %v\n", err)
		os.Exit(1)
	}

	var splash *rasterImage
	if *splashPath != "" {
		splash, err = rasterizeSplash(*splashPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "fontgen: rasterizing splash image: %v\n", err)
			os.Exit(1)
		}
	}

	out, err := os.Create(*outPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fontgen: creating output file: %v\n", err)
		os.Exit(1)
	}
	defer out.Close()

	if err := writeSource(out, *pkgName, *glyphPx, glyphs, splash); err != nil {
		fmt.Fprintf(os.Stderr, "fontgen: writing output: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Wrote %d glyphs", len(glyphs))
	if splash != nil {
		fmt.Printf(" and a %dx%d splash image", splash.width, splash.height)
	}
	fmt.Printf(" to %s\n", *outPath)
}

// glyph is one rasterised character: a size*size coverage mask, one
// anti-aliased gray byte per pixel (0 = background through 0xFF = fully
// covered).
type glyph struct {
	char rune
	size int
	mask []byte
}

// rasterizeGlyphs renders glyphSet at size px using the given TTF font,
// matching a minimal version of freetype's own example rasterisation
// loop (freetype.NewContext + DrawString per glyph, read back into a
// coverage mask instead of onto a screen).
func rasterizeGlyphs(fontPath string, px int) ([]glyph, error) {
	data, err := os.ReadFile(fontPath)
	if err != nil {
		return nil, err
	}
	tt, err := truetype.Parse(data)
	if err != nil {
		return nil, err
	}

	face := truetype.NewFace(tt, &truetype.Options{Size: float64(px), DPI: 72})
	defer face.Close()

	glyphs := make([]glyph, 0, len(glyphSet))
	for _, ch := range glyphSet {
		mask, err := rasterizeOne(tt, face, ch, px)
		if err != nil {
			return nil, fmt.Errorf("glyph %q: %w", ch, err)
		}
		glyphs = append(glyphs, glyph{char: ch, size: px, mask: mask})
	}
	return glyphs, nil
}

func rasterizeOne(tt *truetype.Font, face font.Face, ch rune, px int) ([]byte, error) {
	img := image.NewGray(image.Rect(0, 0, px, px))

	c := freetype.NewContext()
	c.SetDPI(72)
	c.SetFont(tt)
	c.SetFontSize(float64(px))
	c.SetClip(img.Bounds())
	c.SetDst(img)
	c.SetSrc(image.White)

	pt := freetype.Pt(0, px-px/4)
	if _, err := c.DrawString(string(ch), pt); err != nil {
		return nil, err
	}

	mask := make([]byte, px*px)
	for y := 0; y < px; y++ {
		for x := 0; x < px; x++ {
			mask[y*px+x] = img.GrayAt(x, y).Y
		}
	}
	return mask, nil
}

// glyphAdvance reports the horizontal advance of ch in face, in whole
// pixels — unused by the current fixed-grid panic screen layout but kept
// available for a future proportional renderer, per golang.org/x/image/
// font's Face.GlyphAdvance contract.
func glyphAdvance(face font.Face, ch rune) int {
	adv, ok := face.GlyphAdvance(ch)
	if !ok {
		return 0
	}
	return adv.Round()
}

var _ = fixed.I // keep golang.org/x/image/math/fixed linked for glyphAdvance's Round() call path

// rasterImage is a decoded-and-flattened ARGB8888 splash image, matching
// imageconvert's own output layout so the kernel's framebuffer code can
// treat both embedded assets the same way.
type rasterImage struct {
	width, height int
	pixels        []uint32 // 0xAARRGGBB, row-major
}

// rasterizeSplash decodes path and, if it's a vector-ish source (SVG isn't
// supported by image.Decode — this only accepts raster formats the
// standard decoders + gg's context can composite), flattens it to
// ARGB8888, matching imageconvert's decode-then-flatten sequence.
func rasterizeSplash(path string) (*rasterImage, error) {
	img, err := gg.LoadImage(path)
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()

	ctx := gg.NewContext(width, height)
	ctx.DrawImage(img, 0, 0)

	out := &rasterImage{width: width, height: height, pixels: make([]uint32, width*height)}
	flat := ctx.Image()
	idx := 0
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, a := flat.At(x, y).RGBA()
			out.pixels[idx] = uint32(a/257)<<24 | uint32(r/257)<<16 | uint32(g/257)<<8 | uint32(b/257)
			idx++
		}
	}
	return out, nil
}

func writeSource(out *os.File, pkgName string, glyphPx int, glyphs []glyph, splash *rasterImage) error {
	var b strings.Builder
	fmt.Fprintf(&b, "// Code generated by fontgen. DO NOT EDIT.\n\n")
	fmt.Fprintf(&b, "package %s\n\n", pkgName)
	fmt.Fprintf(&b, "// GlyphSize is the width and height, in pixels, of every entry in Glyphs.\n")
	fmt.Fprintf(&b, "const GlyphSize = %d\n\n", glyphPx)

	fmt.Fprintf(&b, "// Glyphs maps each covered rune to its GlyphSize*GlyphSize coverage mask,\n")
	fmt.Fprintf(&b, "// row-major, one byte per pixel (0 = background, 0xFF = fully covered).\n")
	fmt.Fprintf(&b, "var Glyphs = map[rune][]byte{\n")
	for _, g := range glyphs {
		fmt.Fprintf(&b, "\t%d: {", g.char)
		for i, v := range g.mask {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "%d", v)
		}
		fmt.Fprintf(&b, "}, // %q\n", g.char)
	}
	fmt.Fprintf(&b, "}\n")

	if splash != nil {
		fmt.Fprintf(&b, "\n// SplashWidth and SplashHeight give Splash's dimensions.\n")
		fmt.Fprintf(&b, "const SplashWidth = %d\n", splash.width)
		fmt.Fprintf(&b, "const SplashHeight = %d\n\n", splash.height)
		fmt.Fprintf(&b, "// Splash is the boot splash image, row-major ARGB8888 (0xAARRGGBB).\n")
		fmt.Fprintf(&b, "var Splash = [...]uint32{")
		for i, px := range splash.pixels {
			if i > 0 {
				b.WriteByte(',')
			}
			fmt.Fprintf(&b, "0x%08X", px)
		}
		fmt.Fprintf(&b, "}\n")
	}

	_, err := out.WriteString(b.String())
	return err
}
