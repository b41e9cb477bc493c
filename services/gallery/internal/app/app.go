package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"momentsstudio/internal/util"
	"momentsstudio/pkg/domain"
	"momentsstudio/pkg/gdrive"
	"momentsstudio/pkg/storage"
	"momentsstudio/pkg/store"
)

const (
	defaultMaxPhotos     = 50
	defaultPresignExpiry = 15 * time.Minute
	countConcurrency     = 4
)

// DriveClient is the subset of the Drive API the gallery needs.
type DriveClient interface {
	CreateFolder(ctx context.Context, accessToken, name, parentID string) (string, error)
	UploadFile(ctx context.Context, accessToken string, upload domain.Upload, folderID string) (gdrive.RemoteFile, error)
}

// Config holds the explicitly constructed dependencies of the gallery.
type Config struct {
	Stores       store.Scoper
	Tokens       gdrive.TokenProvider
	Drive        DriveClient
	Archive      storage.ObjectStore // optional
	RootFolderID string

	MaxPhotosPerUpload  int
	AllowedContentTypes []string
	PresignExpiry       time.Duration
}

// App runs album creation and photo ingestion against Drive and the
// metadata store.
type App struct {
	stores        store.Scoper
	tokens        gdrive.TokenProvider
	drive         DriveClient
	archive       storage.ObjectStore
	rootFolderID  string
	maxPhotos     int
	allowedTypes  map[string]bool
	presignExpiry time.Duration
}

func New(cfg Config) (*App, error) {
	if cfg.Stores == nil {
		return nil, errors.New("metadata store required")
	}
	if cfg.Tokens == nil {
		return nil, errors.New("token provider required")
	}
	if cfg.Drive == nil {
		return nil, errors.New("drive client required")
	}
	maxPhotos := cfg.MaxPhotosPerUpload
	if maxPhotos <= 0 {
		maxPhotos = defaultMaxPhotos
	}
	allowed := make(map[string]bool, len(cfg.AllowedContentTypes))
	for _, ct := range cfg.AllowedContentTypes {
		if ct = strings.ToLower(strings.TrimSpace(ct)); ct != "" {
			allowed[ct] = true
		}
	}
	expiry := cfg.PresignExpiry
	if expiry <= 0 {
		expiry = defaultPresignExpiry
	}
	return &App{
		stores:        cfg.Stores,
		tokens:        cfg.Tokens,
		drive:         cfg.Drive,
		archive:       cfg.Archive,
		rootFolderID:  strings.TrimSpace(cfg.RootFolderID),
		maxPhotos:     maxPhotos,
		allowedTypes:  allowed,
		presignExpiry: expiry,
	}, nil
}

// MaxPhotosPerUpload is the largest batch UploadPhotos accepts.
func (a *App) MaxPhotosPerUpload() int {
	return a.maxPhotos
}

type CreateAlbumInput struct {
	CoupleNames string
	EventDate   string
	// AccessCode is generated when empty.
	AccessCode string
	Cover      *domain.Upload
}

// CreateAlbum makes the album's Drive folder, uploads the cover into it
// and records the album. Steps are not rolled back: a failure after the
// folder exists leaves it behind.
func (a *App) CreateAlbum(ctx context.Context, session domain.Session, in CreateAlbumInput) (domain.Album, error) {
	album, cover, err := a.validateCreate(in)
	if err != nil {
		return domain.Album{}, err
	}
	album.CreatedBy = session.User.ID
	logger := util.LoggerFromContext(ctx).With("couple_names", album.CoupleNames, "event_date", album.EventDate)

	accessToken, err := a.tokens.AccessToken(ctx)
	if err != nil {
		return domain.Album{}, err
	}
	folderID, err := a.drive.CreateFolder(ctx, accessToken, album.FolderName(), a.rootFolderID)
	if err != nil {
		return domain.Album{}, err
	}
	logger.Info("album folder created", "drive_folder_id", folderID)

	file, err := a.drive.UploadFile(ctx, accessToken, cover, folderID)
	if err != nil {
		logger.Warn("cover upload failed, folder left in place", "drive_folder_id", folderID, "err", err)
		return domain.Album{}, err
	}
	logger.Info("cover uploaded", "drive_file_id", file.FileID, "view_url", file.ViewURL, "public", file.Public)
	a.archiveCopy(ctx, folderID, file.FileID, cover)

	album.DriveFolderID = folderID
	album.CoverPhotoDriveID = file.FileID
	album.CoverPhotoURL = file.ContentURL
	saved, err := a.stores.ForSession(session.AccessToken).InsertAlbum(ctx, album)
	if err != nil {
		logger.Warn("album insert failed, drive objects left in place", "drive_folder_id", folderID, "err", err)
		return domain.Album{}, err
	}
	logger.Info("album created", "album_id", saved.ID)
	return saved, nil
}

func (a *App) validateCreate(in CreateAlbumInput) (domain.Album, domain.Upload, error) {
	couple := strings.TrimSpace(in.CoupleNames)
	if couple == "" {
		return domain.Album{}, domain.Upload{}, invalid("coupleNames is required")
	}
	date := strings.TrimSpace(in.EventDate)
	if date == "" {
		return domain.Album{}, domain.Upload{}, invalid("eventDate is required")
	}
	if _, err := time.Parse(domain.EventDateLayout, date); err != nil {
		return domain.Album{}, domain.Upload{}, invalid("eventDate must be YYYY-MM-DD")
	}
	if in.Cover == nil {
		return domain.Album{}, domain.Upload{}, invalid("coverPhoto is required")
	}
	cover, err := a.checkUpload(*in.Cover)
	if err != nil {
		return domain.Album{}, domain.Upload{}, err
	}
	code := strings.TrimSpace(in.AccessCode)
	if code == "" {
		code, err = domain.NewAccessCode()
		if err != nil {
			return domain.Album{}, domain.Upload{}, fmt.Errorf("generate access code: %w", err)
		}
	} else {
		normalized, ok := domain.NormalizeAccessCode(code)
		if !ok {
			return domain.Album{}, domain.Upload{}, invalid("accessCode must be 4-32 letters or digits")
		}
		code = normalized
	}
	return domain.Album{CoupleNames: couple, EventDate: date, AccessCode: code}, cover, nil
}

// UploadPhotos adds files to an existing album one at a time. A file that
// fails is recorded in its PhotoResult and the loop moves on.
func (a *App) UploadPhotos(ctx context.Context, session domain.Session, albumID string, uploads []domain.Upload) (BatchResult, error) {
	albumID = strings.TrimSpace(albumID)
	if albumID == "" {
		return BatchResult{}, invalid("albumId is required")
	}
	if len(uploads) == 0 {
		return BatchResult{}, invalid("at least one photo is required")
	}
	if len(uploads) > a.maxPhotos {
		return BatchResult{}, invalid(fmt.Sprintf("at most %d photos per upload", a.maxPhotos))
	}

	st := a.stores.ForSession(session.AccessToken)
	album, ok, err := st.GetAlbum(ctx, albumID)
	if err != nil {
		return BatchResult{}, fmt.Errorf("load album: %w", err)
	}
	if !ok {
		return BatchResult{}, domain.NewError(domain.ErrNotFound, "Album not found", nil)
	}

	accessToken, err := a.tokens.AccessToken(ctx)
	if err != nil {
		return BatchResult{}, err
	}

	logger := util.LoggerFromContext(ctx).With("album_id", album.ID)
	batch := BatchResult{AlbumID: album.ID, Results: make([]PhotoResult, 0, len(uploads))}
	for _, upload := range uploads {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		res := a.ingestOne(ctx, st, accessToken, album, upload)
		if !res.OK() {
			logger.Warn("photo skipped", "file_name", res.FileName, "stage", string(res.Stage), "err", res.Err)
		}
		batch.Results = append(batch.Results, res)
	}
	logger.Info("photo batch finished", "received", len(uploads), "stored", len(batch.Photos()))
	return batch, nil
}

func (a *App) ingestOne(ctx context.Context, st store.Store, accessToken string, album domain.Album, upload domain.Upload) PhotoResult {
	res := PhotoResult{FileName: upload.Name, Stage: StageValidate}
	upload, err := a.checkUpload(upload)
	if err != nil {
		res.Err = err
		return res
	}
	res.Stage = StageUpload
	file, err := a.drive.UploadFile(ctx, accessToken, upload, album.DriveFolderID)
	if err != nil {
		res.Err = err
		return res
	}
	util.LoggerFromContext(ctx).Debug("photo uploaded",
		"album_id", album.ID, "drive_file_id", file.FileID, "view_url", file.ViewURL, "public", file.Public)
	a.archiveCopy(ctx, album.DriveFolderID, file.FileID, upload)

	res.Stage = StagePersist
	photo, err := st.InsertPhoto(ctx, domain.Photo{
		AlbumID:      album.ID,
		DriveFileID:  file.FileID,
		DriveFileURL: file.ContentURL,
		ThumbnailURL: file.ContentURL,
		FileName:     upload.Name,
	})
	if err != nil {
		res.Err = err
		return res
	}
	res.Photo = photo
	res.Stage = StageDone
	return res
}

// checkUpload fills in a missing content type and enforces the allowed set.
func (a *App) checkUpload(upload domain.Upload) (domain.Upload, error) {
	if strings.TrimSpace(upload.Name) == "" {
		upload.Name = "photo"
	}
	if len(upload.Data) == 0 {
		return upload, invalid(fmt.Sprintf("%s is empty", upload.Name))
	}
	ct := upload.ContentType
	if mediaType, _, err := mime.ParseMediaType(ct); err == nil {
		ct = mediaType
	}
	if ct == "" || ct == "application/octet-stream" {
		if byExt := mime.TypeByExtension(strings.ToLower(filepath.Ext(upload.Name))); byExt != "" {
			ct, _, _ = mime.ParseMediaType(byExt)
		} else {
			ct, _, _ = mime.ParseMediaType(http.DetectContentType(upload.Data))
		}
	}
	ct = strings.ToLower(ct)
	if len(a.allowedTypes) > 0 && !a.allowedTypes[ct] {
		return upload, invalid(fmt.Sprintf("%s: content type %s is not allowed", upload.Name, ct))
	}
	upload.ContentType = ct
	return upload, nil
}

func (a *App) archiveCopy(ctx context.Context, folderID, fileID string, upload domain.Upload) {
	if a.archive == nil {
		return
	}
	key := storage.ArchiveKey(folderID, fileID, upload.Name)
	if err := a.archive.Put(ctx, key, bytes.NewReader(upload.Data), int64(len(upload.Data)), upload.ContentType); err != nil {
		util.LoggerFromContext(ctx).Warn("archive copy failed", "key", key, "err", err)
	}
}

// ListAlbums returns albums visible to accessToken (anonymous when empty)
// with their photo counts.
func (a *App) ListAlbums(ctx context.Context, accessToken string) ([]domain.AlbumSummary, error) {
	st := a.stores.ForSession(accessToken)
	albums, err := st.ListAlbums(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]domain.AlbumSummary, len(albums))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(countConcurrency)
	for i, album := range albums {
		out[i].Album = album
		g.Go(func() error {
			n, err := st.CountPhotos(gctx, album.ID)
			if err != nil {
				return fmt.Errorf("count photos for %s: %w", album.ID, err)
			}
			out[i].PhotoCount = n
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func (a *App) GetAlbum(ctx context.Context, session domain.Session, albumID string) (domain.AlbumDetail, error) {
	return a.albumDetail(ctx, a.stores.ForSession(session.AccessToken), func(st store.Store) (domain.Album, bool, error) {
		return st.GetAlbum(ctx, strings.TrimSpace(albumID))
	})
}

// OpenAlbum is the guest entry point: an access code resolves to one
// album, read with anonymous rights.
func (a *App) OpenAlbum(ctx context.Context, accessCode string) (domain.AlbumDetail, error) {
	code, ok := domain.NormalizeAccessCode(accessCode)
	if !ok {
		return domain.AlbumDetail{}, domain.NewError(domain.ErrNotFound, "Album not found", nil)
	}
	return a.albumDetail(ctx, a.stores.ForSession(""), func(st store.Store) (domain.Album, bool, error) {
		return st.GetAlbumByAccessCode(ctx, code)
	})
}

func (a *App) albumDetail(ctx context.Context, st store.Store, find func(store.Store) (domain.Album, bool, error)) (domain.AlbumDetail, error) {
	album, ok, err := find(st)
	if err != nil {
		return domain.AlbumDetail{}, err
	}
	if !ok {
		return domain.AlbumDetail{}, domain.NewError(domain.ErrNotFound, "Album not found", nil)
	}
	photos, err := st.ListPhotos(ctx, album.ID)
	if err != nil {
		return domain.AlbumDetail{}, err
	}
	return domain.AlbumDetail{Album: album, Photos: photos}, nil
}

func (a *App) Stats(ctx context.Context, session domain.Session) (domain.Stats, error) {
	st := a.stores.ForSession(session.AccessToken)
	var stats domain.Stats
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := st.CountAlbums(gctx)
		stats.Albums = n
		return err
	})
	g.Go(func() error {
		n, err := st.CountPhotos(gctx, "")
		stats.Photos = n
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.Stats{}, err
	}
	return stats, nil
}

// ArchiveURL returns a short-lived link to the archived original of a photo.
func (a *App) ArchiveURL(ctx context.Context, session domain.Session, albumID, photoID string) (string, error) {
	if a.archive == nil {
		return "", domain.NewError(domain.ErrNotFound, "Archive is not enabled", nil)
	}
	detail, err := a.GetAlbum(ctx, session, albumID)
	if err != nil {
		return "", err
	}
	for _, photo := range detail.Photos {
		if photo.ID != photoID {
			continue
		}
		key := storage.ArchiveKey(detail.Album.DriveFolderID, photo.DriveFileID, photo.FileName)
		return a.archive.PresignGet(ctx, key, a.presignExpiry)
	}
	return "", domain.NewError(domain.ErrNotFound, "Photo not found", nil)
}

func invalid(msg string) error {
	return domain.NewError(domain.ErrInvalidRequest, msg, nil)
}
