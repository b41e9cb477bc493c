package app

import "momentsstudio/pkg/domain"

// Stage names the step a photo reached before it failed.
type Stage string

const (
	StageValidate Stage = "validate"
	StageUpload   Stage = "upload"
	StagePersist  Stage = "persist"
	StageDone     Stage = "done"
)

// PhotoResult is the outcome of one file in an upload batch. Exactly one
// of Photo (when Stage is StageDone) or Err is meaningful.
type PhotoResult struct {
	FileName string
	Photo    domain.Photo
	Err      error
	Stage    Stage
}

func (r PhotoResult) OK() bool {
	return r.Err == nil && r.Stage == StageDone
}

// BatchResult keeps per-file results in request order.
type BatchResult struct {
	AlbumID string
	Results []PhotoResult
}

// Photos returns the photos that were uploaded and recorded.
func (b BatchResult) Photos() []domain.Photo {
	out := make([]domain.Photo, 0, len(b.Results))
	for _, r := range b.Results {
		if r.OK() {
			out = append(out, r.Photo)
		}
	}
	return out
}

func (b BatchResult) Failed() []PhotoResult {
	var out []PhotoResult
	for _, r := range b.Results {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}
