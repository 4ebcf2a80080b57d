package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"plant-id/api/internal/plant"
)

var ErrNotFound = sql.ErrNoRows

const schema = `
create table if not exists plant_identifications (
  id              bigserial primary key,
  created_at      timestamptz not null default now(),
  image_hash      text not null,
  engine          text not null,
  model           text not null,
  scientific_name text not null default '',
  common_name     text not null default '',
  record_json     jsonb not null,
  unique (image_hash, engine, model)
);
create index if not exists plant_identifications_created_at_idx on plant_identifications (created_at);`

type IdentificationRepo struct{ DB *sql.DB }

func NewIdentificationRepo(db *sql.DB) *IdentificationRepo { return &IdentificationRepo{DB: db} }

// IdentifiedRow — кэшированная успешная идентификация.
type IdentifiedRow struct {
	ID        int64
	CreatedAt time.Time
	ImageHash string
	Engine    string
	Model     string
	Record    plant.Record
}

// Migrate создаёт таблицу кэша, если её ещё нет.
func (r *IdentificationRepo) Migrate(ctx context.Context) error {
	if _, err := r.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate plant_identifications: %w", err)
	}
	return nil
}

// FindByHash достаёт запись по ключу (image_hash + engine + model).
// Если maxAge > 0 — проверяет "свежесть", иначе игнорирует возраст.
func (r *IdentificationRepo) FindByHash(ctx context.Context, imageHash, engine, model string, maxAge time.Duration) (*IdentifiedRow, error) {
	const q = `
select id, created_at, image_hash, engine, model, record_json
from plant_identifications
where image_hash = $1 and engine = $2 and model = $3
limit 1`
	var (
		row IdentifiedRow
		js  []byte
	)
	err := r.DB.QueryRowContext(ctx, q, imageHash, engine, model).
		Scan(&row.ID, &row.CreatedAt, &row.ImageHash, &row.Engine, &row.Model, &js)
	if err != nil {
		return nil, err
	}
	if maxAge > 0 && time.Since(row.CreatedAt) > maxAge {
		return nil, ErrNotFound
	}
	rec, err := plant.Normalize(json.RawMessage(js))
	if err != nil {
		// битый JSON в кэше — считаем, что записи нет
		return nil, ErrNotFound
	}
	row.Record = rec
	return &row, nil
}

// Upsert сохраняет успешную идентификацию. Повтор по (image_hash, engine, model) перезаписывает запись.
func (r *IdentificationRepo) Upsert(ctx context.Context, imageHash, engine, model string, rec plant.Record) error {
	js, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}
	const q = `
insert into plant_identifications (image_hash, engine, model, scientific_name, common_name, record_json)
values ($1,$2,$3,$4,$5,$6)
on conflict (image_hash, engine, model) do update
set scientific_name = excluded.scientific_name,
    common_name = excluded.common_name,
    record_json = excluded.record_json,
    created_at = now()`
	_, err = r.DB.ExecContext(ctx, q, imageHash, engine, model,
		string(rec.ScientificName), string(rec.CommonName), js)
	return err
}

// PurgeOlderThan удаляет старые записи кэша, чтобы не раздувать БД.
func (r *IdentificationRepo) PurgeOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	if olderThan <= 0 {
		return 0, errors.New("olderThan must be > 0")
	}
	cutoff := time.Now().Add(-olderThan)
	const q = `delete from plant_identifications where created_at < $1`
	res, err := r.DB.ExecContext(ctx, q, cutoff)
	if err != nil {
		return 0, err
	}
	aff, _ := res.RowsAffected()
	return aff, nil
}
