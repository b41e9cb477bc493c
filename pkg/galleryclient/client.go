package galleryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"momentsstudio/pkg/domain"
)

// IngestPath is the orchestrator endpoint, named after the hosted function.
const IngestPath = "/functions/v1/google-drive-upload"

// Client calls the gallery service over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// APIError represents a gallery error response.
type APIError struct {
	Status    int
	Message   string
	Code      string
	RequestID string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s (%s)", e.Message, e.Code)
	}
	return e.Message
}

// NewClient constructs a gallery client. token is the user's access token
// and may be empty for guest calls.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      strings.TrimSpace(token),
		httpClient: &http.Client{Timeout: 15 * time.Minute},
	}
}

// CreateAlbum creates an album with the given cover. An empty accessCode
// lets the server generate one.
func (c *Client) CreateAlbum(ctx context.Context, coupleNames, eventDate, accessCode string, cover domain.Upload) (domain.Album, error) {
	fields := map[string]string{
		"action":      "create_album",
		"coupleNames": coupleNames,
		"eventDate":   eventDate,
	}
	if accessCode != "" {
		fields["accessCode"] = accessCode
	}
	var resp struct {
		Album domain.Album `json:"album"`
	}
	if err := c.postForm(ctx, fields, "coverPhoto", []domain.Upload{cover}, &resp); err != nil {
		return domain.Album{}, err
	}
	return resp.Album, nil
}

// UploadPhotos sends one batch. Only photos the server stored are returned.
func (c *Client) UploadPhotos(ctx context.Context, albumID string, photos []domain.Upload) ([]domain.Photo, error) {
	fields := map[string]string{"action": "upload_photos", "albumId": albumID}
	var resp struct {
		Photos []domain.Photo `json:"photos"`
	}
	if err := c.postForm(ctx, fields, "photos", photos, &resp); err != nil {
		return nil, err
	}
	return resp.Photos, nil
}

func (c *Client) ListAlbums(ctx context.Context) ([]domain.AlbumSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/albums", nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Items []domain.AlbumSummary `json:"items"`
	}
	if err := c.do(req, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func (c *Client) GetAlbum(ctx context.Context, id string) (domain.AlbumDetail, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/albums/"+url.PathEscape(id), nil)
	if err != nil {
		return domain.AlbumDetail{}, err
	}
	var detail domain.AlbumDetail
	if err := c.do(req, &detail); err != nil {
		return domain.AlbumDetail{}, err
	}
	return detail, nil
}

// OpenAlbum resolves a guest access code.
func (c *Client) OpenAlbum(ctx context.Context, accessCode string) (domain.AlbumDetail, error) {
	body, err := json.Marshal(map[string]string{"accessCode": accessCode})
	if err != nil {
		return domain.AlbumDetail{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/access", bytes.NewReader(body))
	if err != nil {
		return domain.AlbumDetail{}, err
	}
	req.Header.Set("Content-Type", "application/json")
	var detail domain.AlbumDetail
	if err := c.do(req, &detail); err != nil {
		return domain.AlbumDetail{}, err
	}
	return detail, nil
}

func (c *Client) postForm(ctx context.Context, fields map[string]string, fileField string, files []domain.Upload, out any) error {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return err
		}
	}
	for _, f := range files {
		contentType := f.ContentType
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		header := textproto.MIMEHeader{}
		header.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, fileField, f.Name))
		header.Set("Content-Type", contentType)
		part, err := writer.CreatePart(header)
		if err != nil {
			return err
		}
		if _, err := part.Write(f.Data); err != nil {
			return err
		}
	}
	if err := writer.Close(); err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+IngestPath, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		var errResp struct {
			Error     string `json:"error"`
			Code      string `json:"code"`
			RequestID string `json:"requestId"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		msg := errResp.Error
		if msg == "" {
			msg = resp.Status
		}
		return &APIError{
			Status:    resp.StatusCode,
			Message:   msg,
			Code:      strings.TrimSpace(errResp.Code),
			RequestID: errResp.RequestID,
		}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Batches splits uploads into chunks of at most size.
func Batches(uploads []domain.Upload, size int) [][]domain.Upload {
	if size <= 0 {
		size = len(uploads)
	}
	var out [][]domain.Upload
	for len(uploads) > 0 {
		n := min(size, len(uploads))
		out = append(out, uploads[:n])
		uploads = uploads[n:]
	}
	return out
}
