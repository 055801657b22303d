package build

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is the Postgres implementation of Backend and CollectionReader.
// Build records live as jsonb documents in src_build; source collection
// documents live in src_docs keyed by (collection, doc_id).
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Pool() *pgxpool.Pool { return s.pool }

func scanRecord(row pgx.Row) (Record, error) {
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan build record: %w", err)
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode build record: %w", err)
	}
	return rec, nil
}

func (s *Store) FindOne(ctx context.Context, id string) (Record, error) {
	row := s.pool.QueryRow(ctx, `SELECT doc FROM src_build WHERE id = $1`, id)
	return scanRecord(row)
}

func (s *Store) FindByIndexEnv(ctx context.Context, index, env string) (Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT doc FROM src_build WHERE doc->'index'->($1::text)->>'environment' = $2`,
		index, env)
	return scanRecord(row)
}

func (s *Store) All(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `SELECT doc FROM src_build ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list builds: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan build record: %w", err)
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode build record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) SaveJobs(ctx context.Context, id string, jobs []map[string]any) error {
	raw, err := json.Marshal(jobs)
	if err != nil {
		return fmt.Errorf("encode jobs: %w", err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE src_build SET doc = jsonb_set(doc, '{jobs}', $2::jsonb, true) WHERE id = $1`,
		id, raw)
	if err != nil {
		return fmt.Errorf("save jobs: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// setKeyed merges info under doc.<field>.<key>, creating the parent object
// when absent.
func (s *Store) setKeyed(ctx context.Context, id, field, key string, info map[string]any) error {
	raw, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("encode %s info: %w", field, err)
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE src_build SET doc = jsonb_set(
		     jsonb_set(doc, ARRAY[$2], COALESCE(doc->$2, '{}'::jsonb), true),
		     ARRAY[$2, $3], $4::jsonb, true)
		 WHERE id = $1`,
		id, field, key, raw)
	if err != nil {
		return fmt.Errorf("set %s info: %w", field, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) SetIndexInfo(ctx context.Context, id, index string, info map[string]any) error {
	return s.setKeyed(ctx, id, "index", index, info)
}

func (s *Store) SetSnapshotInfo(ctx context.Context, id, snapshot string, info map[string]any) error {
	return s.setKeyed(ctx, id, "snapshot", snapshot, info)
}

func (s *Store) AddPending(ctx context.Context, id, action string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE src_build SET doc = jsonb_set(doc, '{pending}',
		     (COALESCE(doc->'pending', '[]'::jsonb) - $2::text) || to_jsonb($2::text), true)
		 WHERE id = $1`,
		id, action)
	if err != nil {
		return fmt.Errorf("add pending action: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) CountIDs(ctx context.Context, collection string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM src_docs WHERE collection = $1`, collection).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count ids: %w", err)
	}
	return count, nil
}

// IDBatches streams ids with keyset pagination, one query per batch, so a
// long-running index job holds no open cursor between dispatches.
func (s *Store) IDBatches(collection string, batchSize int) BatchSource {
	return &idFeeder{pool: s.pool, collection: collection, size: batchSize}
}

type idFeeder struct {
	pool       *pgxpool.Pool
	collection string
	size       int
	after      string
	done       bool
}

func (f *idFeeder) Next(ctx context.Context) ([]string, error) {
	if f.done {
		return nil, nil
	}
	rows, err := f.pool.Query(ctx,
		`SELECT doc_id FROM src_docs
		 WHERE collection = $1 AND doc_id > $2
		 ORDER BY doc_id LIMIT $3`,
		f.collection, f.after, f.size)
	if err != nil {
		return nil, fmt.Errorf("feed ids: %w", err)
	}
	defer rows.Close()

	var batch []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		batch = append(batch, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(batch) == 0 {
		f.done = true
		return nil, nil
	}
	f.after = batch[len(batch)-1]
	if len(batch) < f.size {
		f.done = true
	}
	return batch, nil
}

func (s *Store) FetchDocs(ctx context.Context, collection string, ids []string) (map[string]map[string]any, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT doc_id, doc FROM src_docs WHERE collection = $1 AND doc_id = ANY($2)`,
		collection, ids)
	if err != nil {
		return nil, fmt.Errorf("fetch docs: %w", err)
	}
	defer rows.Close()

	docs := make(map[string]map[string]any, len(ids))
	for rows.Next() {
		var id string
		var raw []byte
		if err := rows.Scan(&id, &raw); err != nil {
			return nil, fmt.Errorf("scan doc: %w", err)
		}
		var doc map[string]any
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode doc %s: %w", id, err)
		}
		docs[id] = doc
	}
	return docs, rows.Err()
}
