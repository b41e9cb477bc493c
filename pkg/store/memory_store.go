package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"momentsstudio/pkg/domain"
)

// MemoryStore keeps metadata in-process. Used for local runs and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	albums map[string]domain.Album
	photos map[string][]domain.Photo // album ID -> photos in insertion order
	order  []string                  // album IDs in insertion order
	now    func() time.Time
}

// NewMemoryStore initializes an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		albums: make(map[string]domain.Album),
		photos: make(map[string][]domain.Photo),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// ForSession returns the store itself; it has no row-level security.
func (m *MemoryStore) ForSession(string) Store {
	return m
}

func (m *MemoryStore) InsertAlbum(_ context.Context, a domain.Album) (domain.Album, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.albums {
		if existing.AccessCode == a.AccessCode {
			return domain.Album{}, domain.NewError(domain.ErrPersistence, "duplicate key value violates unique constraint \"albums_access_code_key\"", nil)
		}
	}
	a.ID = uuid.NewString()
	a.CreatedAt = m.now()
	m.albums[a.ID] = a
	m.order = append(m.order, a.ID)
	return a, nil
}

func (m *MemoryStore) GetAlbum(_ context.Context, id string) (domain.Album, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.albums[id]
	return a, ok, nil
}

func (m *MemoryStore) GetAlbumByAccessCode(_ context.Context, code string) (domain.Album, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, id := range m.order {
		if a := m.albums[id]; a.AccessCode == code {
			return a, true, nil
		}
	}
	return domain.Album{}, false, nil
}

// ListAlbums returns albums newest first.
func (m *MemoryStore) ListAlbums(context.Context) ([]domain.Album, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Album, 0, len(m.order))
	for i := len(m.order) - 1; i >= 0; i-- {
		res = append(res, m.albums[m.order[i]])
	}
	sort.SliceStable(res, func(i, j int) bool {
		return res[i].CreatedAt.After(res[j].CreatedAt)
	})
	return res, nil
}

func (m *MemoryStore) CountAlbums(context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.albums), nil
}

// InsertPhoto enforces the album reference like the photos_album_id foreign key.
func (m *MemoryStore) InsertPhoto(_ context.Context, p domain.Photo) (domain.Photo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.albums[p.AlbumID]; !ok {
		return domain.Photo{}, domain.NewError(domain.ErrPersistence, "insert or update on table \"photos\" violates foreign key constraint \"photos_album_id_fkey\"", nil)
	}
	p.ID = uuid.NewString()
	p.CreatedAt = m.now()
	m.photos[p.AlbumID] = append(m.photos[p.AlbumID], p)
	return p, nil
}

func (m *MemoryStore) ListPhotos(_ context.Context, albumID string) ([]domain.Photo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	src := m.photos[albumID]
	res := make([]domain.Photo, len(src))
	copy(res, src)
	return res, nil
}

func (m *MemoryStore) CountPhotos(_ context.Context, albumID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if albumID != "" {
		return len(m.photos[albumID]), nil
	}
	total := 0
	for _, photos := range m.photos {
		total += len(photos)
	}
	return total, nil
}
