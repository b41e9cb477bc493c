package supabase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"momentsstudio/pkg/domain"
)

const singleObject = "application/vnd.pgrst.object+json"

// invalidTextRepresentation is Postgres' code for a value that does not
// parse as the column type, e.g. a non-uuid compared against a uuid id.
const invalidTextRepresentation = "22P02"

// Session is the PostgREST view of the albums/photos tables for one
// caller. Row-level security is evaluated against its token.
type Session struct {
	client      *Client
	accessToken string
}

type albumRow struct {
	ID                string `json:"id,omitempty"`
	CoupleNames       string `json:"couple_names"`
	EventDate         string `json:"event_date"`
	CoverPhotoURL     string `json:"cover_photo_url"`
	CoverPhotoDriveID string `json:"cover_photo_drive_id"`
	DriveFolderID     string `json:"drive_folder_id"`
	AccessCode        string `json:"access_code"`
	CreatedBy         string `json:"created_by"`
	CreatedAt         string `json:"created_at,omitempty"`
}

type photoRow struct {
	ID           string `json:"id,omitempty"`
	AlbumID      string `json:"album_id"`
	DriveFileID  string `json:"drive_file_id"`
	DriveFileURL string `json:"drive_file_url"`
	ThumbnailURL string `json:"thumbnail_url"`
	FileName     string `json:"file_name"`
	CreatedAt    string `json:"created_at,omitempty"`
}

func (s *Session) InsertAlbum(ctx context.Context, a domain.Album) (domain.Album, error) {
	in := albumRow{
		CoupleNames:       a.CoupleNames,
		EventDate:         a.EventDate,
		CoverPhotoURL:     a.CoverPhotoURL,
		CoverPhotoDriveID: a.CoverPhotoDriveID,
		DriveFolderID:     a.DriveFolderID,
		AccessCode:        a.AccessCode,
		CreatedBy:         a.CreatedBy,
	}
	var out albumRow
	if err := s.insert(ctx, "albums", in, &out); err != nil {
		return domain.Album{}, err
	}
	return out.toDomain(), nil
}

func (s *Session) InsertPhoto(ctx context.Context, p domain.Photo) (domain.Photo, error) {
	in := photoRow{
		AlbumID:      p.AlbumID,
		DriveFileID:  p.DriveFileID,
		DriveFileURL: p.DriveFileURL,
		ThumbnailURL: p.ThumbnailURL,
		FileName:     p.FileName,
	}
	var out photoRow
	if err := s.insert(ctx, "photos", in, &out); err != nil {
		return domain.Photo{}, err
	}
	return out.toDomain(), nil
}

func (s *Session) GetAlbum(ctx context.Context, id string) (domain.Album, bool, error) {
	return s.firstAlbum(ctx, "id", id)
}

func (s *Session) GetAlbumByAccessCode(ctx context.Context, code string) (domain.Album, bool, error) {
	return s.firstAlbum(ctx, "access_code", code)
}

func (s *Session) ListAlbums(ctx context.Context) ([]domain.Album, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("order", "created_at.desc")
	var rows []albumRow
	if err := s.get(ctx, "albums", q, &rows); err != nil {
		return nil, fmt.Errorf("list albums: %w", err)
	}
	res := make([]domain.Album, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.toDomain())
	}
	return res, nil
}

func (s *Session) ListPhotos(ctx context.Context, albumID string) ([]domain.Photo, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("album_id", "eq."+albumID)
	q.Set("order", "created_at.asc")
	var rows []photoRow
	if err := s.get(ctx, "photos", q, &rows); err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	res := make([]domain.Photo, 0, len(rows))
	for _, row := range rows {
		res = append(res, row.toDomain())
	}
	return res, nil
}

func (s *Session) CountAlbums(ctx context.Context) (int, error) {
	return s.count(ctx, "albums", url.Values{})
}

func (s *Session) CountPhotos(ctx context.Context, albumID string) (int, error) {
	q := url.Values{}
	if albumID != "" {
		q.Set("album_id", "eq."+albumID)
	}
	return s.count(ctx, "photos", q)
}

func (s *Session) firstAlbum(ctx context.Context, column, value string) (domain.Album, bool, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set(column, "eq."+value)
	q.Set("limit", "1")
	var rows []albumRow
	if err := s.get(ctx, "albums", q, &rows); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Code == invalidTextRepresentation {
			return domain.Album{}, false, nil
		}
		return domain.Album{}, false, fmt.Errorf("get album: %w", err)
	}
	if len(rows) == 0 {
		return domain.Album{}, false, nil
	}
	return rows[0].toDomain(), true, nil
}

func (s *Session) insert(ctx context.Context, table string, row, out any) error {
	err := s.client.doJSON(ctx, request{
		method:      http.MethodPost,
		path:        "/rest/v1/" + table,
		accessToken: s.accessToken,
		body:        row,
		headers: map[string]string{
			"Prefer": "return=representation",
			"Accept": singleObject,
		},
	}, out)
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return domain.NewError(domain.ErrPersistence, apiErr.Message, err)
	}
	return domain.NewError(domain.ErrPersistence, "Failed to save "+strings.TrimSuffix(table, "s"), err)
}

func (s *Session) get(ctx context.Context, table string, q url.Values, out any) error {
	return s.client.doJSON(ctx, request{
		method:      http.MethodGet,
		path:        "/rest/v1/" + table,
		query:       q.Encode(),
		accessToken: s.accessToken,
	}, out)
}

func (s *Session) count(ctx context.Context, table string, q url.Values) (int, error) {
	q.Set("select", "id")
	resp, err := s.client.send(ctx, request{
		method:      http.MethodHead,
		path:        "/rest/v1/" + table,
		query:       q.Encode(),
		accessToken: s.accessToken,
		headers:     map[string]string{"Prefer": "count=exact"},
	})
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	resp.Body.Close()
	n, err := parseContentRangeTotal(resp.Header.Get("Content-Range"))
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// parseContentRangeTotal reads N out of "0-9/N" or "*/N".
func parseContentRangeTotal(v string) (int, error) {
	_, total, ok := strings.Cut(strings.TrimSpace(v), "/")
	if !ok || total == "*" {
		return 0, fmt.Errorf("content-range %q has no total", v)
	}
	n, err := strconv.Atoi(total)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("content-range %q: bad total", v)
	}
	return n, nil
}

func (r albumRow) toDomain() domain.Album {
	return domain.Album{
		ID:                r.ID,
		CoupleNames:       r.CoupleNames,
		EventDate:         r.EventDate,
		CoverPhotoURL:     r.CoverPhotoURL,
		CoverPhotoDriveID: r.CoverPhotoDriveID,
		DriveFolderID:     r.DriveFolderID,
		AccessCode:        r.AccessCode,
		CreatedBy:         r.CreatedBy,
		CreatedAt:         parseTimestamp(r.CreatedAt),
	}
}

func (r photoRow) toDomain() domain.Photo {
	return domain.Photo{
		ID:           r.ID,
		AlbumID:      r.AlbumID,
		DriveFileID:  r.DriveFileID,
		DriveFileURL: r.DriveFileURL,
		ThumbnailURL: r.ThumbnailURL,
		FileName:     r.FileName,
		CreatedAt:    parseTimestamp(r.CreatedAt),
	}
}

// parseTimestamp accepts timestamptz output and bare timestamp output,
// which PostgREST renders without an offset.
func parseTimestamp(v string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999999"} {
		if t, err := time.Parse(layout, v); err == nil {
			return t.UTC()
		}
	}
	return time.Time{}
}
