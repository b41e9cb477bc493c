package domain

import "time"

// EventDateLayout is the calendar-date format used for album event dates.
const EventDateLayout = "2006-01-02"

// Album is one event's collection of photos, backed by a single Drive folder.
type Album struct {
	ID                string    `json:"id"`
	CoupleNames       string    `json:"couple_names"`
	EventDate         string    `json:"event_date"`
	CoverPhotoURL     string    `json:"cover_photo_url"`
	CoverPhotoDriveID string    `json:"cover_photo_drive_id"`
	DriveFolderID     string    `json:"drive_folder_id"`
	AccessCode        string    `json:"access_code"`
	CreatedBy         string    `json:"created_by"`
	CreatedAt         time.Time `json:"created_at"`
}

// FolderName is the Drive folder name used for the album.
func (a Album) FolderName() string {
	return a.CoupleNames + " - " + a.EventDate
}

type Photo struct {
	ID           string    `json:"id"`
	AlbumID      string    `json:"album_id"`
	DriveFileID  string    `json:"drive_file_id"`
	DriveFileURL string    `json:"drive_file_url"`
	ThumbnailURL string    `json:"thumbnail_url"`
	FileName     string    `json:"file_name"`
	CreatedAt    time.Time `json:"created_at"`
}

// AlbumSummary is an album as shown in listings.
type AlbumSummary struct {
	Album
	PhotoCount int `json:"photo_count"`
}

// AlbumDetail is an album together with its photos.
type AlbumDetail struct {
	Album  Album   `json:"album"`
	Photos []Photo `json:"photos"`
}

type Stats struct {
	Albums int `json:"albums"`
	Photos int `json:"photos"`
}

type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Session is an authenticated caller: the resolved user plus the bearer
// token that store calls are forwarded with.
type Session struct {
	User        User
	AccessToken string
}

// Upload is one file received from a client, fully buffered.
type Upload struct {
	Name        string
	ContentType string
	Data        []byte
}
