package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"fleetnav/internal/graph"
	"fleetnav/internal/model"
)

//go:embed migrations/*.sql
var migrations embed.FS

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// Migrate applies the embedded schema files in name order. Every statement
// is idempotent, so running it on each start is safe.
func (p *Postgres) Migrate(ctx context.Context) error {
	names, err := fs.Glob(migrations, "migrations/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(names)
	for _, n := range names {
		body, err := migrations.ReadFile(n)
		if err != nil {
			return err
		}
		if _, err := p.db.ExecContext(ctx, string(body)); err != nil {
			return fmt.Errorf("migrate %s: %w", n, err)
		}
	}
	return nil
}

// SaveEdges upserts edges; the latest weight wins.
func (p *Postgres) SaveEdges(ctx context.Context, edges []graph.Edge) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, e := range edges {
		_, err := tx.ExecContext(ctx, `INSERT INTO edges (from_node, to_node, weight) VALUES ($1,$2,$3)
            ON CONFLICT (from_node, to_node) DO UPDATE SET weight=EXCLUDED.weight, updated_at=now()`,
			int64(e.From), int64(e.To), e.Weight)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) LoadEdges(ctx context.Context) ([]graph.Edge, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT from_node, to_node, weight FROM edges ORDER BY from_node, to_node`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []graph.Edge{}
	for rows.Next() {
		var from, to int64
		var w float64
		if err := rows.Scan(&from, &to, &w); err != nil {
			return nil, err
		}
		out = append(out, graph.Edge{From: graph.NodeID(from), To: graph.NodeID(to), Weight: w})
	}
	return out, rows.Err()
}

// CreateTasks inserts tasks; ids already stored are skipped.
func (p *Postgres) CreateTasks(ctx context.Context, tasks []*model.Task) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, t := range tasks {
		enq := t.EnqueuedAt
		if enq.IsZero() {
			enq = time.Now().UTC()
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO tasks (id, source, destination, path, cost, status, enqueued_at)
            VALUES ($1,$2,$3,$4,$5,$6,$7) ON CONFLICT (id) DO NOTHING`,
			t.ID, int64(t.Source), int64(t.Destination), pathJSON(t.Path), t.Cost, model.StatusQueued, enq)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

const taskColumns = `id::text, source, destination, path, cost, status, COALESCE(executor_id,''), enqueued_at, dispatched_at, completed_at`

func scanTask(sc interface{ Scan(...any) error }) (model.TaskRecord, error) {
	var r model.TaskRecord
	var src, dst int64
	var path []byte
	var dispatched, completed sql.NullTime
	if err := sc.Scan(&r.ID, &src, &dst, &path, &r.Cost, &r.Status, &r.ExecutorID, &r.EnqueuedAt, &dispatched, &completed); err != nil {
		return r, err
	}
	r.Source, r.Destination = graph.NodeID(src), graph.NodeID(dst)
	if len(path) > 0 {
		if err := json.Unmarshal(path, &r.Path); err != nil {
			return r, err
		}
	}
	if dispatched.Valid {
		t := dispatched.Time
		r.DispatchedAt = &t
	}
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	return r, nil
}

func (p *Postgres) GetTask(ctx context.Context, id string) (model.TaskRecord, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id::text=$1`, id)
	r, err := scanTask(row)
	if errors.Is(err, sql.ErrNoRows) {
		return r, ErrNotFound
	}
	return r, err
}

func (p *Postgres) PendingTasks(ctx context.Context) ([]*model.Task, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE status NOT IN ($1,$2) ORDER BY seq`,
		model.StatusCompleted, model.StatusRejected)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*model.Task
	for rows.Next() {
		r, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		t := r.Task
		out = append(out, &t)
	}
	return out, rows.Err()
}

func (p *Postgres) UpdateStatus(ctx context.Context, id, status string) error {
	q := `UPDATE tasks SET status=$2 WHERE id::text=$1`
	switch status {
	case model.StatusCompleted:
		q = `UPDATE tasks SET status=$2, completed_at=now() WHERE id::text=$1`
	case model.StatusQueued:
		q = `UPDATE tasks SET status=$2, executor_id=NULL, dispatched_at=NULL WHERE id::text=$1`
	}
	res, err := p.db.ExecContext(ctx, q, id, status)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) RecordDispatch(ctx context.Context, d model.Dispatch) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx, `UPDATE tasks SET status=$2, executor_id=$3, dispatched_at=$4, path=$5 WHERE id::text=$1`,
		d.TaskID, model.StatusDispatched, d.ExecutorID, d.DispatchedAt, pathJSON(d.Path))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO dispatches (task_id, executor_id, path, dispatched_at) VALUES ($1,$2,$3,$4)`,
		d.TaskID, d.ExecutorID, pathJSON(d.Path), d.DispatchedAt); err != nil {
		return err
	}
	return tx.Commit()
}

// ListDispatches pages by dispatch id; the cursor is the last id returned.
func (p *Postgres) ListDispatches(ctx context.Context, cursor string, limit int) ([]model.Dispatch, string, error) {
	limit = clampLimit(limit)
	var after int64
	if cursor != "" {
		n, err := strconv.ParseInt(cursor, 10, 64)
		if err != nil || n < 0 {
			return nil, "", ErrBadCursor
		}
		after = n
	}
	rows, err := p.db.QueryContext(ctx, `SELECT id, task_id::text, executor_id, path, dispatched_at FROM dispatches WHERE id > $1 ORDER BY id LIMIT $2`, after, limit)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Dispatch{}
	var last int64
	for rows.Next() {
		var d model.Dispatch
		var path []byte
		if err := rows.Scan(&last, &d.TaskID, &d.ExecutorID, &path, &d.DispatchedAt); err != nil {
			return nil, "", err
		}
		if err := json.Unmarshal(path, &d.Path); err != nil {
			return nil, "", err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	var next string
	if len(out) == limit {
		next = strconv.FormatInt(last, 10)
	}
	return out, next, nil
}

func pathJSON(p graph.Path) any {
	if p == nil {
		return nil
	}
	b, _ := json.Marshal(p)
	return string(b)
}
