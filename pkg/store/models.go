package store

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
	"momentsstudio/pkg/domain"
)

// GORM models mapped onto the albums/photos tables the hosted backend uses.
type AlbumModel struct {
	ID                string         `gorm:"primaryKey"`
	CoupleNames       string         `gorm:"not null"`
	EventDate         datatypes.Date `gorm:"not null"`
	CoverPhotoURL     string
	CoverPhotoDriveID string
	DriveFolderID     string    `gorm:"not null"`
	AccessCode        string    `gorm:"uniqueIndex;not null"`
	CreatedBy         string    `gorm:"index"`
	CreatedAt         time.Time `gorm:"not null;index"`
}

func (AlbumModel) TableName() string { return "albums" }

type PhotoModel struct {
	ID           string `gorm:"primaryKey"`
	AlbumID      string `gorm:"not null;index"`
	DriveFileID  string `gorm:"not null"`
	DriveFileURL string `gorm:"not null"`
	ThumbnailURL string
	FileName     string    `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;index"`
}

func (PhotoModel) TableName() string { return "photos" }

func albumToModel(a domain.Album) (AlbumModel, error) {
	date, err := time.Parse(domain.EventDateLayout, a.EventDate)
	if err != nil {
		return AlbumModel{}, fmt.Errorf("event date %q: %w", a.EventDate, err)
	}
	return AlbumModel{
		ID:                a.ID,
		CoupleNames:       a.CoupleNames,
		EventDate:         datatypes.Date(date),
		CoverPhotoURL:     a.CoverPhotoURL,
		CoverPhotoDriveID: a.CoverPhotoDriveID,
		DriveFolderID:     a.DriveFolderID,
		AccessCode:        a.AccessCode,
		CreatedBy:         a.CreatedBy,
		CreatedAt:         a.CreatedAt,
	}, nil
}

func albumFromModel(m AlbumModel) domain.Album {
	return domain.Album{
		ID:                m.ID,
		CoupleNames:       m.CoupleNames,
		EventDate:         time.Time(m.EventDate).Format(domain.EventDateLayout),
		CoverPhotoURL:     m.CoverPhotoURL,
		CoverPhotoDriveID: m.CoverPhotoDriveID,
		DriveFolderID:     m.DriveFolderID,
		AccessCode:        m.AccessCode,
		CreatedBy:         m.CreatedBy,
		CreatedAt:         m.CreatedAt,
	}
}

func photoToModel(p domain.Photo) PhotoModel {
	return PhotoModel{
		ID:           p.ID,
		AlbumID:      p.AlbumID,
		DriveFileID:  p.DriveFileID,
		DriveFileURL: p.DriveFileURL,
		ThumbnailURL: p.ThumbnailURL,
		FileName:     p.FileName,
		CreatedAt:    p.CreatedAt,
	}
}

func photoFromModel(m PhotoModel) domain.Photo {
	return domain.Photo{
		ID:           m.ID,
		AlbumID:      m.AlbumID,
		DriveFileID:  m.DriveFileID,
		DriveFileURL: m.DriveFileURL,
		ThumbnailURL: m.ThumbnailURL,
		FileName:     m.FileName,
		CreatedAt:    m.CreatedAt,
	}
}
