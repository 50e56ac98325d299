package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"testing"
)

func makeDocx(t *testing.T, documentXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("word/document.xml")
	if err != nil {
		t.Fatalf("create zip entry: %v", err)
	}
	if _, err := w.Write([]byte(documentXML)); err != nil {
		t.Fatalf("write zip entry: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	return buf.Bytes()
}

func TestTextPlain(t *testing.T) {
	got, err := Text(context.Background(), []byte("  resume body  \n"), "text/plain", "resume.txt")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if got != "resume body" {
		t.Fatalf("expected trimmed text, got %q", got)
	}
}

func TestTextDocx(t *testing.T) {
	docXML := `<?xml version="1.0"?><w:document xmlns:w="ns"><w:body>` +
		`<w:p><w:r><w:t>Senior Engineer</w:t></w:r></w:p>` +
		`<w:p><w:r><w:t>Kubernetes and Python</w:t></w:r></w:p>` +
		`</w:body></w:document>`
	data := makeDocx(t, docXML)

	got, err := Text(context.Background(), data, mimeDOCX, "resume.docx")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	want := "Senior Engineer\nKubernetes and Python"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestTextZipMappedToDocx(t *testing.T) {
	docXML := `<w:document><w:body><w:p><w:r><w:t>hello</w:t></w:r></w:p></w:body></w:document>`
	data := makeDocx(t, docXML)

	got, err := Text(context.Background(), data, "application/zip", "upload.bin")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if got != "hello" {
		t.Fatalf("expected docx text, got %q", got)
	}
}

func TestTextMimeFromExtension(t *testing.T) {
	got, err := Text(context.Background(), []byte("# Notes"), "", "notes.md")
	if err != nil {
		t.Fatalf("Text: %v", err)
	}
	if got != "# Notes" {
		t.Fatalf("expected markdown passthrough, got %q", got)
	}
}

func TestTextUnsupported(t *testing.T) {
	_, err := Text(context.Background(), []byte{0x1}, "image/png", "photo.png")
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestTextCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Text(ctx, []byte("x"), "text/plain", "x.txt"); err == nil {
		t.Fatal("expected context error")
	}
}
