package gdrive

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"momentsstudio/pkg/domain"
)

func TestBuildMultipartBodyIsByteExact(t *testing.T) {
	data := []byte{0xff, 0xd8, 0xff, 0xe0, 'J', 'F', 'I', 'F'}
	body, err := buildMultipartBody(fileMetadata{
		Name:     "Sarah & James.jpg",
		MimeType: "image/jpeg",
		Parents:  []string{"folder-1"},
	}, data)
	if err != nil {
		t.Fatalf("build body: %v", err)
	}
	want := "\r\n---------314159265358979323846\r\n" +
		"Content-Type: application/json\r\n\r\n" +
		`{"name":"Sarah & James.jpg","mimeType":"image/jpeg","parents":["folder-1"]}` +
		"\r\n---------314159265358979323846\r\n" +
		"Content-Type: image/jpeg\r\n" +
		"Content-Transfer-Encoding: base64\r\n\r\n" +
		base64.StdEncoding.EncodeToString(data) +
		"\r\n---------314159265358979323846--"
	if string(body) != want {
		t.Fatalf("multipart body mismatch\n got: %q\nwant: %q", body, want)
	}
}

func TestBuildMultipartBodyOmitsEmptyParents(t *testing.T) {
	body, err := buildMultipartBody(fileMetadata{Name: "a.png", MimeType: "image/png"}, []byte("x"))
	if err != nil {
		t.Fatalf("build body: %v", err)
	}
	if bytes.Contains(body, []byte("parents")) {
		t.Fatalf("did not expect parents in metadata: %q", body)
	}
}

// fakeDrive records calls made against a Drive-shaped httptest server.
type fakeDrive struct {
	folders     atomic.Int32
	uploads     atomic.Int32
	permissions atomic.Int32

	failFolder     bool
	failUpload     bool
	failPermission bool

	lastFolder   fileMetadata
	lastUpload   fileMetadata
	lastMedia    []byte
	lastAuth     string
	lastShareReq map[string]string
	lastFields   string
	lastShareURL string
}

func (f *fakeDrive) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
		f.folders.Add(1)
		f.lastAuth = r.Header.Get("Authorization")
		f.lastFields = r.URL.Query().Get("fields")
		if f.failFolder {
			w.WriteHeader(http.StatusForbidden)
			_, _ = io.WriteString(w, `{"error":{"code":403,"message":"The user does not have sufficient permissions."}}`)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&f.lastFolder); err != nil {
			t.Errorf("decode folder body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "folder-123"})
	})
	mux.HandleFunc("/upload/drive/v3/files", func(w http.ResponseWriter, r *http.Request) {
		n := f.uploads.Add(1)
		if r.URL.Query().Get("uploadType") != "multipart" || r.URL.Query().Get("fields") != "id,webViewLink,webContentLink" {
			t.Errorf("unexpected upload query: %s", r.URL.RawQuery)
		}
		if f.failUpload {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = io.WriteString(w, "quota exceeded")
			return
		}
		mediaType, params, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
		if err != nil || mediaType != "multipart/related" || params["boundary"] != Boundary {
			t.Errorf("unexpected content type %q", r.Header.Get("Content-Type"))
		}
		reader := multipart.NewReader(r.Body, Boundary)
		metaPart, err := reader.NextPart()
		if err != nil {
			t.Errorf("metadata part: %v", err)
			return
		}
		_ = json.NewDecoder(metaPart).Decode(&f.lastUpload)
		mediaPart, err := reader.NextPart()
		if err != nil {
			t.Errorf("media part: %v", err)
			return
		}
		if mediaPart.Header.Get("Content-Transfer-Encoding") != "base64" {
			t.Errorf("media part not base64")
		}
		encoded, _ := io.ReadAll(mediaPart)
		f.lastMedia, _ = base64.StdEncoding.DecodeString(string(encoded))
		id := "file-" + string(rune('a'+n-1))
		_ = json.NewEncoder(w).Encode(map[string]string{
			"id":             id,
			"webViewLink":    "https://drive.google.com/file/d/" + id + "/view",
			"webContentLink": "https://drive.google.com/uc?id=" + id + "&export=download",
		})
	})
	mux.HandleFunc("/drive/v3/files/", func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/permissions") {
			http.NotFound(w, r)
			return
		}
		f.permissions.Add(1)
		f.lastShareURL = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&f.lastShareReq)
		if f.failPermission {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "anyoneWithLink"})
	})
	return mux
}

func newTestClient(t *testing.T, f *fakeDrive) *Client {
	t.Helper()
	srv := httptest.NewServer(f.handler(t))
	t.Cleanup(srv.Close)
	c, err := NewClient(context.Background(), Config{
		APIBaseURL:    srv.URL,
		UploadBaseURL: srv.URL + "/upload",
		ViewBaseURL:   "https://drive.google.com",
		HTTPClient:    srv.Client(),
	})
	if err != nil {
		t.Fatalf("new drive client: %v", err)
	}
	return c
}

func TestCreateFolder(t *testing.T) {
	f := &fakeDrive{}
	c := newTestClient(t, f)

	id, err := c.CreateFolder(context.Background(), "tok-1", "Sarah & James - 2025-01-15", "root-9")
	if err != nil {
		t.Fatalf("create folder: %v", err)
	}
	if id != "folder-123" {
		t.Fatalf("folder id = %q", id)
	}
	if f.lastAuth != "Bearer tok-1" {
		t.Fatalf("authorization = %q", f.lastAuth)
	}
	if f.lastFields != "id" {
		t.Fatalf("fields = %q", f.lastFields)
	}
	if f.lastFolder.Name != "Sarah & James - 2025-01-15" || f.lastFolder.MimeType != "application/vnd.google-apps.folder" {
		t.Fatalf("unexpected folder metadata: %+v", f.lastFolder)
	}
	if len(f.lastFolder.Parents) != 1 || f.lastFolder.Parents[0] != "root-9" {
		t.Fatalf("parents = %v", f.lastFolder.Parents)
	}
}

func TestCreateFolderFailureIsUpstreamWrite(t *testing.T) {
	c := newTestClient(t, &fakeDrive{failFolder: true})
	_, err := c.CreateFolder(context.Background(), "tok", "x", "")
	if !errors.Is(err, domain.ErrUpstreamWrite) {
		t.Fatalf("expected upstream write error, got %v", err)
	}
	if !strings.Contains(err.Error(), "Failed to create folder") || !strings.Contains(err.Error(), "sufficient permissions") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestUploadFileSharesAndBuildsContentURL(t *testing.T) {
	f := &fakeDrive{}
	c := newTestClient(t, f)
	data := bytes.Repeat([]byte{0xAB}, 1024)

	file, err := c.UploadFile(context.Background(), "tok", domain.Upload{Name: "cover.jpg", ContentType: "image/jpeg", Data: data}, "folder-123")
	if err != nil {
		t.Fatalf("upload: %v", err)
	}
	if file.FileID != "file-a" || !file.Public {
		t.Fatalf("unexpected file: %+v", file)
	}
	if file.ContentURL != "https://drive.google.com/uc?export=view&id=file-a" {
		t.Fatalf("content url = %q", file.ContentURL)
	}
	if file.ViewURL != "https://drive.google.com/file/d/file-a/view" {
		t.Fatalf("view url = %q", file.ViewURL)
	}
	if !bytes.Equal(f.lastMedia, data) {
		t.Fatalf("media bytes did not round trip")
	}
	if f.lastUpload.Name != "cover.jpg" || len(f.lastUpload.Parents) != 1 || f.lastUpload.Parents[0] != "folder-123" {
		t.Fatalf("unexpected upload metadata: %+v", f.lastUpload)
	}
	if f.lastShareReq["role"] != "reader" || f.lastShareReq["type"] != "anyone" {
		t.Fatalf("unexpected permission body: %v", f.lastShareReq)
	}
	if f.lastShareURL != "/drive/v3/files/file-a/permissions" {
		t.Fatalf("permission path = %q", f.lastShareURL)
	}
}

func TestUploadFileIgnoresPermissionFailure(t *testing.T) {
	f := &fakeDrive{failPermission: true}
	c := newTestClient(t, f)
	file, err := c.UploadFile(context.Background(), "tok", domain.Upload{Name: "a.png", ContentType: "image/png", Data: []byte("png")}, "")
	if err != nil {
		t.Fatalf("permission failure must not fail the upload: %v", err)
	}
	if file.Public {
		t.Fatalf("expected Public=false after failed share")
	}
	if f.permissions.Load() != 1 {
		t.Fatalf("permission calls = %d", f.permissions.Load())
	}
}

func TestUploadFileFailureSkipsPermission(t *testing.T) {
	f := &fakeDrive{failUpload: true}
	c := newTestClient(t, f)
	_, err := c.UploadFile(context.Background(), "tok", domain.Upload{Name: "a.png", ContentType: "image/png", Data: []byte("png")}, "f")
	if !errors.Is(err, domain.ErrUpstreamWrite) {
		t.Fatalf("expected upstream write error, got %v", err)
	}
	if !strings.Contains(err.Error(), "quota exceeded") {
		t.Fatalf("expected upstream text in %q", err.Error())
	}
	if f.permissions.Load() != 0 {
		t.Fatalf("no permission call expected after failed upload")
	}
}

func TestRefreshTokenProvider(t *testing.T) {
	var calls atomic.Int32
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/x-www-form-urlencoded") {
			t.Errorf("content type = %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("grant_type") != "refresh_token" ||
			r.PostForm.Get("refresh_token") != "refresh-1" ||
			r.PostForm.Get("client_id") != "client-1" ||
			r.PostForm.Get("client_secret") != "secret-1" {
			t.Errorf("unexpected form: %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"access_token":"ya29.fresh","expires_in":3599,"token_type":"Bearer"}`)
	}))
	defer tokenSrv.Close()

	p := NewRefreshTokenProvider(TokenConfig{
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		RefreshToken: "refresh-1",
		TokenURL:     tokenSrv.URL,
		HTTPClient:   tokenSrv.Client(),
	})
	for i := 0; i < 2; i++ {
		tok, err := p.AccessToken(context.Background())
		if err != nil {
			t.Fatalf("access token: %v", err)
		}
		if tok != "ya29.fresh" {
			t.Fatalf("token = %q", tok)
		}
	}
	if calls.Load() != 2 {
		t.Fatalf("expected one exchange per call, got %d", calls.Load())
	}
}

func TestRefreshTokenProviderErrors(t *testing.T) {
	tokenSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"invalid_grant","error_description":"Token has been expired or revoked."}`)
	}))
	defer tokenSrv.Close()

	tests := []struct {
		name     string
		cfg      TokenConfig
		wantKind error
		wantText string
	}{
		{
			name:     "missing secret is a configuration error",
			cfg:      TokenConfig{ClientID: "c", RefreshToken: "r", TokenURL: tokenSrv.URL},
			wantKind: domain.ErrConfiguration,
			wantText: "Missing Google Drive credentials",
		},
		{
			name:     "rejected grant is an upstream auth error",
			cfg:      TokenConfig{ClientID: "c", ClientSecret: "s", RefreshToken: "r", TokenURL: tokenSrv.URL, HTTPClient: tokenSrv.Client()},
			wantKind: domain.ErrUpstreamAuth,
			wantText: "Failed to refresh access token: Token has been expired or revoked.",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewRefreshTokenProvider(tc.cfg).AccessToken(context.Background())
			if !errors.Is(err, tc.wantKind) {
				t.Fatalf("expected %v, got %v", tc.wantKind, err)
			}
			if err.Error() != tc.wantText {
				t.Fatalf("message = %q, want %q", err.Error(), tc.wantText)
			}
		})
	}
}
