package galleryclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"momentsstudio/pkg/domain"
)

func TestCreateAlbumAndUploadPhotos(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != IngestPath {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			_ = json.NewEncoder(w).Encode(map[string]string{"error": "Unauthorized", "code": "AUTH_INVALID_TOKEN"})
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse form: %v", err)
			return
		}
		switch r.FormValue("action") {
		case "create_album":
			fh := r.MultipartForm.File["coverPhoto"]
			if len(fh) != 1 || fh[0].Header.Get("Content-Type") != "image/jpeg" {
				t.Errorf("cover part = %+v", fh)
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "album": domain.Album{
				ID:          "album-1",
				CoupleNames: r.FormValue("coupleNames"),
				EventDate:   r.FormValue("eventDate"),
				AccessCode:  "ABCD1234",
			}})
		case "upload_photos":
			var photos []domain.Photo
			for _, fh := range r.MultipartForm.File["photos"] {
				photos = append(photos, domain.Photo{AlbumID: r.FormValue("albumId"), FileName: fh.Filename})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"success": true, "photos": photos})
		}
	}))
	defer srv.Close()

	ctx := context.Background()
	c := NewClient(srv.URL+"/", "tok")
	album, err := c.CreateAlbum(ctx, "Sarah & James", "2025-01-15", "", domain.Upload{Name: "c.jpg", ContentType: "image/jpeg", Data: []byte{1}})
	if err != nil {
		t.Fatalf("create album: %v", err)
	}
	if album.ID != "album-1" || album.CoupleNames != "Sarah & James" {
		t.Fatalf("album = %+v", album)
	}

	photos, err := c.UploadPhotos(ctx, album.ID, []domain.Upload{{Name: "1.jpg", Data: []byte{1}}, {Name: "2.jpg", Data: []byte{2}}})
	if err != nil {
		t.Fatalf("upload photos: %v", err)
	}
	if len(photos) != 2 || photos[1].FileName != "2.jpg" || photos[0].AlbumID != "album-1" {
		t.Fatalf("photos = %+v", photos)
	}

	_, err = NewClient(srv.URL, "").UploadPhotos(ctx, album.ID, nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized || apiErr.Code != "AUTH_INVALID_TOKEN" {
		t.Fatalf("expected api error, got %v", err)
	}
}

func TestBatches(t *testing.T) {
	uploads := make([]domain.Upload, 120)
	batches := Batches(uploads, 50)
	if len(batches) != 3 || len(batches[0]) != 50 || len(batches[2]) != 20 {
		t.Fatalf("unexpected batches: %d", len(batches))
	}
	if got := Batches(nil, 50); len(got) != 0 {
		t.Fatalf("expected no batches, got %d", len(got))
	}
}
