package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/audit"
	_ "github.com/meridian-erp/meridian-erp/testing"
)

type fakeRepo struct {
	rows    []audit.TimelineRow
	lastQ   audit.WindowQuery
	purged  int64
	cutoffs []time.Time
}

func (f *fakeRepo) TimelineWindow(ctx context.Context, q audit.WindowQuery) ([]audit.TimelineRow, error) {
	f.lastQ = q
	if q.OffsetRows >= len(f.rows) {
		return nil, nil
	}
	end := q.OffsetRows + q.LimitRows
	if end > len(f.rows) {
		end = len(f.rows)
	}
	return f.rows[q.OffsetRows:end], nil
}

func (f *fakeRepo) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return f.purged, nil
}

func makeRows(n int) []audit.TimelineRow {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := make([]audit.TimelineRow, n)
	for i := range rows {
		rows[i] = audit.TimelineRow{
			At:       base.Add(-time.Duration(i) * time.Minute),
			ActorID:  1,
			Action:   "role.created",
			Entity:   "roles",
			EntityID: "r1",
		}
	}
	return rows
}

func TestTimelineDefaultsAndHasNext(t *testing.T) {
	repo := &fakeRepo{rows: makeRows(25)}
	svc := audit.NewService(repo)

	result, err := svc.Timeline(context.Background(), audit.TimelineFilters{})
	require.NoError(t, err)
	require.Len(t, result.Rows, 20)
	require.True(t, result.Paging.HasNext)
	require.Equal(t, 1, result.Paging.Page)
	require.Equal(t, 2, result.Paging.NextPage)
	require.Zero(t, result.Paging.PrevPage)
	require.Equal(t, 21, repo.lastQ.LimitRows)
}

func TestTimelineLastPage(t *testing.T) {
	repo := &fakeRepo{rows: makeRows(25)}
	svc := audit.NewService(repo)

	result, err := svc.Timeline(context.Background(), audit.TimelineFilters{Page: 2})
	require.NoError(t, err)
	require.Len(t, result.Rows, 5)
	require.False(t, result.Paging.HasNext)
	require.Equal(t, 1, result.Paging.PrevPage)
	require.Equal(t, 20, repo.lastQ.OffsetRows)
}

func TestTimelineClampsPageSize(t *testing.T) {
	repo := &fakeRepo{rows: makeRows(100)}
	svc := audit.NewService(repo)

	result, err := svc.Timeline(context.Background(), audit.TimelineFilters{PageSize: 500})
	require.NoError(t, err)
	require.Len(t, result.Rows, 50)
	require.Equal(t, 50, result.Paging.PageSize)

	result, err = svc.Timeline(context.Background(), audit.TimelineFilters{PageSize: -3, Page: -1})
	require.NoError(t, err)
	require.Equal(t, 20, result.Paging.PageSize)
	require.Equal(t, 1, result.Paging.Page)
}

func TestTimelinePassesFilters(t *testing.T) {
	repo := &fakeRepo{}
	svc := audit.NewService(repo)
	from := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	_, err := svc.Timeline(context.Background(), audit.TimelineFilters{
		From:    from,
		ActorID: 7,
		Entity:  "roles",
		Action:  "role.updated",
	})
	require.NoError(t, err)
	require.Equal(t, from, repo.lastQ.From)
	require.Equal(t, int64(7), repo.lastQ.ActorID)
	require.Equal(t, "roles", repo.lastQ.Entity)
	require.Equal(t, "role.updated", repo.lastQ.Action)
}

func TestPurge(t *testing.T) {
	repo := &fakeRepo{purged: 42}
	svc := audit.NewService(repo)

	n, err := svc.Purge(context.Background(), 30*24*time.Hour)
	require.NoError(t, err)
	require.Equal(t, int64(42), n)
	require.Len(t, repo.cutoffs, 1)
	require.WithinDuration(t, time.Now().Add(-30*24*time.Hour), repo.cutoffs[0], time.Minute)

	_, err = svc.Purge(context.Background(), 0)
	require.Error(t, err)
}
