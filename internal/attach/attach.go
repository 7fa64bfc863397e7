package attach

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"sync"

	_ "image/gif"
	_ "image/png"

	"github.com/h2non/filetype"
)

// MaxImageBytes is the size ceiling images are compressed down to before
// encoding. PDFs are sent as-is.
const MaxImageBytes = 512 * 1024

var ErrUnsupportedType = errors.New("unsupported attachment type")

type Kind int

const (
	KindImage Kind = iota + 1
	KindPDF
)

// Staged is one attachment prepared for transmission.
type Staged struct {
	Name    string
	Kind    Kind
	MIME    string
	data    []byte
	release func()
}

// Encoded returns the base64 payload for the outbound frame.
func (s *Staged) Encoded() string {
	return base64.StdEncoding.EncodeToString(s.data)
}

// Size returns the prepared (post-compression) byte size.
func (s *Staged) Size() int {
	return len(s.data)
}

// Stager holds at most one staged attachment. Staging a new one, of either
// kind, replaces and releases the previous selection.
type Stager struct {
	mu     sync.Mutex
	staged *Staged
}

func NewStager() *Stager {
	return &Stager{}
}

// Stage validates, compresses and stages one selected file. The release
// callback, if non-nil, is invoked when the staged attachment is replaced or
// cleared, and is where callers revoke preview URLs.
func (s *Stager) Stage(name string, data []byte, release func()) (*Staged, error) {
	kind, mime, err := sniff(data)
	if err != nil {
		if release != nil {
			release()
		}
		return nil, err
	}

	if kind == KindImage && len(data) > MaxImageBytes {
		data, err = Compress(data, MaxImageBytes)
		if err != nil {
			if release != nil {
				release()
			}
			return nil, fmt.Errorf("compress image: %w", err)
		}
	}

	staged := &Staged{
		Name:    name,
		Kind:    kind,
		MIME:    mime,
		data:    data,
		release: release,
	}

	s.mu.Lock()
	prev := s.staged
	s.staged = staged
	s.mu.Unlock()

	if prev != nil && prev.release != nil {
		prev.release()
	}
	return staged, nil
}

// Staged returns the current staged attachment, or nil.
func (s *Stager) Staged() *Staged {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staged
}

// Clear drops and releases the staged attachment, if any.
func (s *Stager) Clear() {
	s.mu.Lock()
	prev := s.staged
	s.staged = nil
	s.mu.Unlock()

	if prev != nil && prev.release != nil {
		prev.release()
	}
}

func sniff(data []byte) (Kind, string, error) {
	if filetype.IsImage(data) {
		t, err := filetype.Match(data)
		if err != nil {
			return 0, "", err
		}
		return KindImage, t.MIME.Value, nil
	}

	t, err := filetype.Match(data)
	if err != nil {
		return 0, "", err
	}
	if t.MIME.Value == "application/pdf" {
		return KindPDF, t.MIME.Value, nil
	}
	return 0, "", fmt.Errorf("%w: %q", ErrUnsupportedType, t.MIME.Value)
}

// Compress re-encodes an image as JPEG under the given byte cap, first by
// stepping quality down and then by halving dimensions.
func Compress(data []byte, maxBytes int) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	for {
		for _, quality := range []int{85, 70, 55, 40, 25, 10} {
			var buf bytes.Buffer
			if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
				return nil, err
			}
			if buf.Len() <= maxBytes {
				return buf.Bytes(), nil
			}
		}

		bounds := img.Bounds()
		if bounds.Dx() <= 1 || bounds.Dy() <= 1 {
			return nil, errors.New("image cannot be compressed under limit")
		}
		img = halve(img)
	}
}

// halve produces a half-size nearest-neighbor copy.
func halve(src image.Image) image.Image {
	bounds := src.Bounds()
	w, h := bounds.Dx()/2, bounds.Dy()/2
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			dst.Set(x, y, src.At(bounds.Min.X+x*2, bounds.Min.Y+y*2))
		}
	}
	return dst
}
