// Package avatar normalizes uploaded profile images and derives default avatars.
package avatar

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

const (
	// Size is the edge length, in pixels, of every stored avatar.
	Size = 250

	defaultJPEGQuality = 90
)

// ErrUnsupportedImage is returned when the upload cannot be decoded as an image.
var ErrUnsupportedImage = errors.New("unsupported image")

// Processor decodes an image, forces it to Size x Size and re-encodes it as JPEG.
// Aspect ratio is not preserved.
type Processor struct {
	width   int
	height  int
	quality int
}

func NewProcessor() *Processor {
	return &Processor{
		width:   Size,
		height:  Size,
		quality: defaultJPEGQuality,
	}
}

// Process returns the JPEG encoding of raw resized to the avatar dimensions.
func (p *Processor) Process(raw []byte) ([]byte, error) {
	if len(raw) == 0 {
		return nil, ErrUnsupportedImage
	}

	img, err := imaging.Decode(bytes.NewReader(raw), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	resized := imaging.Resize(img, p.width, p.height, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(p.quality)); err != nil {
		return nil, fmt.Errorf("encode avatar: %w", err)
	}
	return buf.Bytes(), nil
}
