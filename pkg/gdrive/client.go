package gdrive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"momentsstudio/internal/util"
	"momentsstudio/pkg/domain"
)

const (
	DefaultAPIBaseURL    = "https://www.googleapis.com"
	DefaultUploadBaseURL = "https://www.googleapis.com/upload"
	DefaultViewBaseURL   = "https://drive.google.com"

	folderMimeType = "application/vnd.google-apps.folder"
)

// Config points the client at Drive. Zero values use Google's endpoints.
type Config struct {
	APIBaseURL    string
	UploadBaseURL string
	ViewBaseURL   string
	HTTPClient    *http.Client
}

// Client calls Drive v3 with a caller-supplied access token. Metadata calls
// go through the generated service; media uploads are sent as a hand-built
// multipart/related body.
type Client struct {
	svc        *drive.Service
	uploadBase string
	viewBase   string
	httpClient *http.Client
}

// RemoteFile describes an uploaded file.
type RemoteFile struct {
	FileID string
	// ViewURL is Drive's webViewLink.
	ViewURL string
	// ContentURL serves the raw bytes to anyone with the link.
	ContentURL string
	// Public is false when the anyone-reader grant failed.
	Public bool
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	svc, err := drive.NewService(ctx,
		option.WithHTTPClient(httpClient),
		option.WithEndpoint(baseOr(cfg.APIBaseURL, DefaultAPIBaseURL)+"/drive/v3/"),
	)
	if err != nil {
		return nil, fmt.Errorf("drive service: %w", err)
	}
	return &Client{
		svc:        svc,
		uploadBase: baseOr(cfg.UploadBaseURL, DefaultUploadBaseURL),
		viewBase:   baseOr(cfg.ViewBaseURL, DefaultViewBaseURL),
		httpClient: httpClient,
	}, nil
}

// CreateFolder creates a folder, under parentID when non-empty, and returns its id.
func (c *Client) CreateFolder(ctx context.Context, accessToken, name, parentID string) (string, error) {
	folder := &drive.File{Name: name, MimeType: folderMimeType}
	if parentID != "" {
		folder.Parents = []string{parentID}
	}
	call := c.svc.Files.Create(folder).Fields("id").Context(ctx)
	call.Header().Set("Authorization", "Bearer "+accessToken)
	created, err := call.Do()
	if err != nil {
		return "", writeError("Failed to create folder", err)
	}
	if created.Id == "" {
		return "", domain.NewError(domain.ErrUpstreamWrite, "Failed to create folder: empty folder id", nil)
	}
	return created.Id, nil
}

// UploadFile stores upload in folderID and then shares it publicly. The
// share step is best-effort: its failure is logged and only shows up as
// RemoteFile.Public == false.
func (c *Client) UploadFile(ctx context.Context, accessToken string, upload domain.Upload, folderID string) (RemoteFile, error) {
	meta := fileMetadata{Name: upload.Name, MimeType: upload.ContentType}
	if folderID != "" {
		meta.Parents = []string{folderID}
	}
	body, err := buildMultipartBody(meta, upload.Data)
	if err != nil {
		return RemoteFile{}, err
	}
	created, err := c.postMultipart(ctx, accessToken, body)
	if err != nil {
		return RemoteFile{}, writeError("Failed to upload file to Google Drive", err)
	}
	if created.Id == "" {
		return RemoteFile{}, domain.NewError(domain.ErrUpstreamWrite, "Failed to upload file to Google Drive: empty file id", nil)
	}

	file := RemoteFile{
		FileID:     created.Id,
		ViewURL:    created.WebViewLink,
		ContentURL: c.ContentURL(created.Id),
	}
	if err := c.SharePublic(ctx, accessToken, created.Id); err != nil {
		util.LoggerFromContext(ctx).Warn("drive share failed", "file_id", created.Id, "err", err)
	} else {
		file.Public = true
	}
	return file, nil
}

// SharePublic grants read access to anyone with the link.
func (c *Client) SharePublic(ctx context.Context, accessToken, fileID string) error {
	call := c.svc.Permissions.Create(fileID, &drive.Permission{Role: "reader", Type: "anyone"}).Context(ctx)
	call.Header().Set("Authorization", "Bearer "+accessToken)
	_, err := call.Do()
	return err
}

// ContentURL is the direct-view link for a shared file.
func (c *Client) ContentURL(fileID string) string {
	return c.viewBase + "/uc?export=view&id=" + url.QueryEscape(fileID)
}

func (c *Client) postMultipart(ctx context.Context, accessToken string, body []byte) (*drive.File, error) {
	endpoint := c.uploadBase + "/drive/v3/files?uploadType=multipart&fields=id,webViewLink,webContentLink"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Content-Type", multipartContentType())
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer googleapi.CloseBody(resp)
	if err := googleapi.CheckResponse(resp); err != nil {
		return nil, err
	}
	var created drive.File
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return &created, nil
}

// writeError classifies a failed write. Upstream text, when Drive sent
// any, is appended to msg.
func writeError(msg string, err error) error {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		text := strings.TrimSpace(gerr.Message)
		if text == "" {
			text = strings.TrimSpace(gerr.Body)
		}
		if text == "" {
			text = http.StatusText(gerr.Code)
		}
		return domain.NewError(domain.ErrUpstreamWrite, msg+": "+text, err)
	}
	return domain.NewError(domain.ErrUpstreamWrite, msg, err)
}

func baseOr(v, def string) string {
	v = strings.TrimRight(strings.TrimSpace(v), "/")
	if v == "" {
		return def
	}
	return v
}
