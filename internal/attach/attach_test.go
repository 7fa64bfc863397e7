package attach

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	rng := rand.New(rand.NewSource(42))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{uint8(rng.Intn(256)), uint8(rng.Intn(256)), uint8(rng.Intn(256)), 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png encode: %v", err)
	}
	return buf.Bytes()
}

func pdfBytes() []byte {
	return []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")
}

func TestStager_AcceptsImageAndPDF(t *testing.T) {
	s := NewStager()

	staged, err := s.Stage("photo.png", pngBytes(t, 8, 8), nil)
	if err != nil {
		t.Fatalf("Stage image failed: %v", err)
	}
	if staged.Kind != KindImage {
		t.Errorf("expected KindImage, got %d", staged.Kind)
	}

	staged, err = s.Stage("report.pdf", pdfBytes(), nil)
	if err != nil {
		t.Fatalf("Stage pdf failed: %v", err)
	}
	if staged.Kind != KindPDF {
		t.Errorf("expected KindPDF, got %d", staged.Kind)
	}
	if staged.MIME != "application/pdf" {
		t.Errorf("expected application/pdf, got %s", staged.MIME)
	}
}

func TestStager_RejectsOtherTypes(t *testing.T) {
	s := NewStager()
	released := false

	_, err := s.Stage("notes.txt", []byte("just some text"), func() { released = true })
	if err == nil {
		t.Fatal("expected error for unsupported type")
	}
	if !released {
		t.Error("release callback must fire when staging is rejected")
	}
	if s.Staged() != nil {
		t.Error("nothing should be staged after a rejection")
	}
}

func TestStager_Exclusivity(t *testing.T) {
	s := NewStager()
	imageReleased := false

	if _, err := s.Stage("photo.png", pngBytes(t, 8, 8), func() { imageReleased = true }); err != nil {
		t.Fatalf("Stage image failed: %v", err)
	}
	if _, err := s.Stage("report.pdf", pdfBytes(), nil); err != nil {
		t.Fatalf("Stage pdf failed: %v", err)
	}

	staged := s.Staged()
	if staged == nil || staged.Kind != KindPDF {
		t.Fatal("expected exactly the PDF to be staged")
	}
	if !imageReleased {
		t.Error("replaced image staging must be released")
	}
}

func TestStager_Clear(t *testing.T) {
	s := NewStager()
	released := false

	if _, err := s.Stage("photo.png", pngBytes(t, 8, 8), func() { released = true }); err != nil {
		t.Fatalf("Stage failed: %v", err)
	}
	s.Clear()

	if s.Staged() != nil {
		t.Error("Clear must drop the staged attachment")
	}
	if !released {
		t.Error("Clear must release the staging")
	}
}

func TestCompress_UnderCap(t *testing.T) {
	// Random noise compresses poorly, forcing the quality/dimension loop to
	// actually work.
	data := pngBytes(t, 512, 512)
	if len(data) <= MaxImageBytes {
		t.Skipf("test image unexpectedly small: %d bytes", len(data))
	}

	out, err := Compress(data, MaxImageBytes)
	if err != nil {
		t.Fatalf("Compress failed: %v", err)
	}
	if len(out) > MaxImageBytes {
		t.Errorf("compressed size %d exceeds cap %d", len(out), MaxImageBytes)
	}
	if _, _, err := image.Decode(bytes.NewReader(out)); err != nil {
		t.Errorf("compressed output is not a decodable image: %v", err)
	}
}

func TestStaged_Encoded(t *testing.T) {
	s := NewStager()
	staged, err := s.Stage("report.pdf", pdfBytes(), nil)
	if err != nil {
		t.Fatalf("Stage failed: %v", err)
	}

	decoded, err := base64.StdEncoding.DecodeString(staged.Encoded())
	if err != nil {
		t.Fatalf("Encoded output is not valid base64: %v", err)
	}
	if !bytes.Equal(decoded, pdfBytes()) {
		t.Error("PDF payload must pass through unmodified")
	}
}
