package storage

import (
	"strings"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain", in: "IMG_0001.jpg", want: "IMG_0001.jpg"},
		{name: "spaces and symbols", in: "first dance (1).JPG", want: "first_dance__1_.JPG"},
		{name: "path traversal", in: "../../etc/passwd", want: "passwd"},
		{name: "windows path", in: `C:\Users\me\cake.png`, want: "cake.png"},
		{name: "hidden file", in: ".env", want: "env"},
		{name: "empty", in: "  ", want: "file"},
		{name: "unicode", in: "café.jpg", want: "caf_.jpg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeName(tt.in); got != tt.want {
				t.Fatalf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestSanitizeNameCapsLength(t *testing.T) {
	got := SanitizeName(strings.Repeat("a", 500) + ".jpg")
	if len(got) > maxNameLen {
		t.Fatalf("expected at most %d bytes, got %d", maxNameLen, len(got))
	}
}

func TestArchiveKey(t *testing.T) {
	got := ArchiveKey("folder-1", "file-a", "Sarah & James.jpg")
	if got != "albums/folder-1/file-a-Sarah___James.jpg" {
		t.Fatalf("unexpected key %q", got)
	}
}
