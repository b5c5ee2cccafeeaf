package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PGRepository membaca audit_logs langsung dari PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository membuat repository audit baru.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

var _ Repository = (*PGRepository)(nil)

// TimelineWindow mengambil satu jendela baris sesuai filter. Filter yang
// kosong dinetralkan di SQL sehingga cukup satu query.
func (r *PGRepository) TimelineWindow(ctx context.Context, q WindowQuery) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT occurred_at, actor_id, action, entity, entity_id, meta
		FROM audit_logs
		WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
		  AND ($2::timestamptz IS NULL OR occurred_at < $2)
		  AND ($3::bigint = 0 OR actor_id = $3)
		  AND ($4::text = '' OR entity = $4)
		  AND ($5::text = '' OR action = $5)
		ORDER BY occurred_at DESC
		OFFSET $6 LIMIT $7`,
		nullableTime(q.From), nullableTime(q.To), q.ActorID, q.Entity, q.Action, q.OffsetRows, q.LimitRows)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TimelineRow
	for rows.Next() {
		var row TimelineRow
		var meta []byte
		if err := rows.Scan(&row.At, &row.ActorID, &row.Action, &row.Entity, &row.EntityID, &meta); err != nil {
			return nil, err
		}
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &row.Meta)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// PurgeOlderThan menghapus entri sebelum cutoff dan mengembalikan jumlahnya.
func (r *PGRepository) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM audit_logs WHERE occurred_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func nullableTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
