package usecase

import (
	"context"
	"strings"
	"testing"
)

func TestIssueUploadURLReturnsKeyAndSignedURL(t *testing.T) {
	storage := newFakeStorage()
	uc := NewUploadURLUseCase(storage, 0)

	key, url, err := uc.IssueUploadURL(context.Background(), "contrato firmado.pdf")
	if err != nil {
		t.Fatalf("issue upload url: %v", err)
	}
	if !strings.HasPrefix(key, "uploads/") {
		t.Fatalf("expected uploads/ prefix, got %q", key)
	}
	if !strings.HasSuffix(key, "_contrato_firmado.pdf") {
		t.Fatalf("expected sanitized file name suffix, got %q", key)
	}
	if url != "https://storage.test/"+key {
		t.Fatalf("expected url signed for the key, got %q", url)
	}
}

func TestSanitizeFilenameStripsUnsafeCharacters(t *testing.T) {
	cases := map[string]string{
		"informe social.pdf":  "informe_social.pdf",
		"../../etc/passwd":    "passwd",
		"garantía#2024!.docx": "garant_a_2024_.docx",
		"":                    "document.bin",
	}
	for in, want := range cases {
		if got := sanitizeFilename(in); got != want {
			t.Errorf("sanitizeFilename(%q) = %q, want %q", in, got, want)
		}
	}
}
