package pdfx

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/askdocs/askdocs-backend/engine/domain"
)

func TestExtractTextRejectsEmptyInput(t *testing.T) {
	_, err := ExtractText(nil)
	if !errors.Is(err, domain.ErrUnreadableDocument) {
		t.Fatalf("err = %v, want ErrUnreadableDocument", err)
	}
}

func TestExtractTextRejectsGarbage(t *testing.T) {
	cases := map[string][]byte{
		"plain text":       []byte("this is not a pdf"),
		"truncated header": []byte("%PDF-1.7"),
		"binary noise":     {0x00, 0xff, 0x13, 0x37, 0x00, 0xff},
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ExtractText(data)
			if !errors.Is(err, domain.ErrUnreadableDocument) {
				t.Fatalf("err = %v, want ErrUnreadableDocument", err)
			}
		})
	}
}

func TestExtractFileMissingPath(t *testing.T) {
	_, err := ExtractFile(filepath.Join(t.TempDir(), "missing.pdf"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if errors.Is(err, domain.ErrUnreadableDocument) {
		t.Error("missing file should be an IO error, not an unreadable document")
	}
}
