package audit

import (
	"context"
	"fmt"
	"time"
)

// WindowQuery membawa filter dan jendela paging ke repository.
type WindowQuery struct {
	From       time.Time
	To         time.Time
	ActorID    int64
	Entity     string
	Action     string
	OffsetRows int
	LimitRows  int
}

// Repository menyediakan akses ke tabel audit_logs.
type Repository interface {
	TimelineWindow(ctx context.Context, q WindowQuery) ([]TimelineRow, error)
	PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// Result membungkus hasil timeline dengan informasi paging.
type Result struct {
	Rows   []TimelineRow `json:"rows"`
	Paging PagingInfo    `json:"paging"`
}

// Service mengoordinasikan pengambilan data audit.
type Service struct {
	repo Repository
}

// NewService membuat service audit timeline baru.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Timeline mengambil data audit dengan paging. Satu baris ekstra diminta
// untuk mendeteksi halaman berikutnya tanpa COUNT terpisah.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s.repo == nil {
		return Result{}, fmt.Errorf("audit: repository not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 50 {
		pageSize = 50
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize

	rows, err := s.repo.TimelineWindow(ctx, WindowQuery{
		From:       filters.From,
		To:         filters.To,
		ActorID:    filters.ActorID,
		Entity:     filters.Entity,
		Action:     filters.Action,
		OffsetRows: offset,
		LimitRows:  pageSize + 1,
	})
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Rows: rows, Paging: paging}, nil
}

// Purge menghapus entri audit yang lebih tua dari masa retensi.
func (s *Service) Purge(ctx context.Context, retention time.Duration) (int64, error) {
	if s.repo == nil {
		return 0, fmt.Errorf("audit: repository not configured")
	}
	if retention <= 0 {
		return 0, fmt.Errorf("audit: retention must be positive")
	}
	return s.repo.PurgeOlderThan(ctx, time.Now().Add(-retention))
}
