package display

import (
	"fmt"
	"image"
	"image/png"
	"os"
)

// Panel receives rendered frames.
type Panel interface {
	Show(img image.Image) error
	Close() error
}

// Framebuffer writes frames to a Linux framebuffer device in RGB565.
type Framebuffer struct {
	f   *os.File
	buf []byte
}

func OpenFramebuffer(path string) (*Framebuffer, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open framebuffer: %w", err)
	}
	return &Framebuffer{f: f}, nil
}

func (fb *Framebuffer) Show(img image.Image) error {
	fb.buf = rgb565(img, fb.buf)
	if _, err := fb.f.Seek(0, 0); err != nil {
		return fmt.Errorf("framebuffer seek: %w", err)
	}
	if _, err := fb.f.Write(fb.buf); err != nil {
		return fmt.Errorf("framebuffer write: %w", err)
	}
	return nil
}

func (fb *Framebuffer) Close() error {
	return fb.f.Close()
}

// rgb565 packs img row by row, little endian, reusing buf when it is large
// enough.
func rgb565(img image.Image, buf []byte) []byte {
	b := img.Bounds()
	n := b.Dx() * b.Dy() * 2
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	buf = buf[:n]
	i := 0
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, _ := img.At(x, y).RGBA() // 16-bit pre-multiplied
			px := uint16(r>>11)<<11 | uint16(g>>10)<<5 | uint16(bl>>11)
			buf[i] = byte(px)
			buf[i+1] = byte(px >> 8)
			i += 2
		}
	}
	return buf
}

// PNGFile rewrites a PNG file with every frame. Handy on a desk without a
// screen attached.
type PNGFile struct {
	path string
}

func NewPNGFile(path string) *PNGFile {
	return &PNGFile{path: path}
}

func (p *PNGFile) Show(img image.Image) error {
	tmp := p.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return err
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return fmt.Errorf("encode %s: %w", p.path, err)
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, p.path)
}

func (p *PNGFile) Close() error {
	return nil
}

// Open returns the panel for kind: "framebuffer", "png" or "none". A nil
// panel with a nil error means no display.
func Open(kind, path string) (Panel, error) {
	switch kind {
	case "", "none":
		return nil, nil
	case "framebuffer", "fb":
		return OpenFramebuffer(path)
	case "png":
		return NewPNGFile(path), nil
	default:
		return nil, fmt.Errorf("unknown display panel %q", kind)
	}
}
