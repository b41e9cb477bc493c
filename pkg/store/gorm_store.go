package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"momentsstudio/pkg/domain"
)

const migrateLockID int64 = 52019117

type GormStoreOptions struct {
	AutoMigrate bool
}

type GormStoreOption func(*GormStoreOptions)

// WithAutoMigrate creates or updates the albums/photos tables on open.
// Leave it off when the schema is owned elsewhere. In particular never
// enable it against a Supabase-managed database: migration deletes photos
// whose album is missing, and AutoMigrate would reconcile the uuid id
// columns against the text columns declared on the models.
func WithAutoMigrate(enabled bool) GormStoreOption {
	return func(opts *GormStoreOptions) {
		opts.AutoMigrate = enabled
	}
}

// GormStore implements Store directly against Postgres.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore opens the database and optionally migrates it.
func NewGormStore(dsn string, options ...GormStoreOption) (*GormStore, error) {
	opts := GormStoreOptions{}
	for _, option := range options {
		if option != nil {
			option(&opts)
		}
	}

	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             time.Second,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if opts.AutoMigrate {
		if err := withMigrationLock(db, migrate); err != nil {
			return nil, err
		}
	}
	return &GormStore{db: db}, nil
}

func migrate(tx *gorm.DB) error {
	if err := tx.AutoMigrate(&AlbumModel{}, &PhotoModel{}); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	if err := tx.Exec(`
		DO $$
		BEGIN
			DELETE FROM photos p
			WHERE NOT EXISTS (SELECT 1 FROM albums a WHERE a.id = p.album_id);
			IF NOT EXISTS (
				SELECT 1 FROM information_schema.table_constraints
				WHERE table_schema = 'public'
				AND table_name = 'photos'
				AND constraint_name = 'photos_album_id_fkey'
			) THEN
				ALTER TABLE photos
				ADD CONSTRAINT photos_album_id_fkey
				FOREIGN KEY (album_id) REFERENCES albums(id) ON DELETE CASCADE;
			END IF;
		END $$;
	`).Error; err != nil {
		return fmt.Errorf("ensure photo foreign key: %w", err)
	}
	return nil
}

func withMigrationLock(db *gorm.DB, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()
	if err := execAdvisory(ctx, conn, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
		return fmt.Errorf("acquire migrate lock: %w", err)
	}
	defer func() {
		_ = execAdvisory(ctx, conn, "SELECT pg_advisory_unlock($1)", migrateLockID)
	}()
	return fn(db)
}

func execAdvisory(ctx context.Context, conn *sql.Conn, query string, lockID int64) error {
	_, err := conn.ExecContext(ctx, query, lockID)
	return err
}

// ForSession returns the store itself. Direct database access bypasses
// row-level security, so callers are authorized at the HTTP layer.
func (s *GormStore) ForSession(string) Store {
	return s
}

func (s *GormStore) InsertAlbum(ctx context.Context, a domain.Album) (domain.Album, error) {
	a.ID = uuid.NewString()
	a.CreatedAt = time.Now().UTC()
	model, err := albumToModel(a)
	if err != nil {
		return domain.Album{}, domain.NewError(domain.ErrPersistence, err.Error(), err)
	}
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Album{}, domain.NewError(domain.ErrPersistence, err.Error(), err)
	}
	return albumFromModel(model), nil
}

func (s *GormStore) GetAlbum(ctx context.Context, id string) (domain.Album, bool, error) {
	return s.firstAlbum(ctx, "id = ?", id)
}

func (s *GormStore) GetAlbumByAccessCode(ctx context.Context, code string) (domain.Album, bool, error) {
	return s.firstAlbum(ctx, "access_code = ?", code)
}

func (s *GormStore) firstAlbum(ctx context.Context, query string, arg any) (domain.Album, bool, error) {
	var model AlbumModel
	if err := s.db.WithContext(ctx).Where(query, arg).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) || isInvalidTextRepresentation(err) {
			return domain.Album{}, false, nil
		}
		return domain.Album{}, false, err
	}
	return albumFromModel(model), true, nil
}

// ListAlbums returns albums newest first.
func (s *GormStore) ListAlbums(ctx context.Context) ([]domain.Album, error) {
	var models []AlbumModel
	if err := s.db.WithContext(ctx).Order("created_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Album, 0, len(models))
	for _, m := range models {
		res = append(res, albumFromModel(m))
	}
	return res, nil
}

func (s *GormStore) CountAlbums(ctx context.Context) (int, error) {
	var count int64
	if err := s.db.WithContext(ctx).Model(&AlbumModel{}).Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

func (s *GormStore) InsertPhoto(ctx context.Context, p domain.Photo) (domain.Photo, error) {
	p.ID = uuid.NewString()
	p.CreatedAt = time.Now().UTC()
	model := photoToModel(p)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		return domain.Photo{}, domain.NewError(domain.ErrPersistence, err.Error(), err)
	}
	return photoFromModel(model), nil
}

// ListPhotos returns an album's photos oldest first.
func (s *GormStore) ListPhotos(ctx context.Context, albumID string) ([]domain.Photo, error) {
	var models []PhotoModel
	if err := s.db.WithContext(ctx).Where("album_id = ?", albumID).Order("created_at ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Photo, 0, len(models))
	for _, m := range models {
		res = append(res, photoFromModel(m))
	}
	return res, nil
}

func (s *GormStore) CountPhotos(ctx context.Context, albumID string) (int, error) {
	var count int64
	tx := s.db.WithContext(ctx).Model(&PhotoModel{})
	if albumID != "" {
		tx = tx.Where("album_id = ?", albumID)
	}
	if err := tx.Count(&count).Error; err != nil {
		return 0, err
	}
	return int(count), nil
}

// isInvalidTextRepresentation reports a value that does not parse as the
// column type (22P02), e.g. a non-uuid id against a uuid column.
func isInvalidTextRepresentation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "22P02"
}
