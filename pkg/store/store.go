package store

import (
	"context"

	"momentsstudio/pkg/domain"
)

// Store is album and photo metadata as seen by one caller session.
// Get* methods report absence with found == false, not an error.
type Store interface {
	InsertAlbum(ctx context.Context, album domain.Album) (domain.Album, error)
	GetAlbum(ctx context.Context, id string) (domain.Album, bool, error)
	GetAlbumByAccessCode(ctx context.Context, code string) (domain.Album, bool, error)
	ListAlbums(ctx context.Context) ([]domain.Album, error)
	CountAlbums(ctx context.Context) (int, error)

	InsertPhoto(ctx context.Context, photo domain.Photo) (domain.Photo, error)
	ListPhotos(ctx context.Context, albumID string) ([]domain.Photo, error)
	// CountPhotos counts one album's photos, or all photos when albumID is "".
	CountPhotos(ctx context.Context, albumID string) (int, error)
}

// Scoper binds a Store to a caller's bearer token. An empty token means
// anonymous access.
type Scoper interface {
	ForSession(accessToken string) Store
}
