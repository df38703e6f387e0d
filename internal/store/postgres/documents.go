package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"questlog/internal/store"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// collections implements store.Collections over a pool or a transaction.
type collections struct {
	q querier
}

func (c *collections) Insert(ctx context.Context, collection string, doc store.Document) (string, error) {
	normalized, err := store.Normalize(doc)
	if err != nil {
		return "", err
	}
	id := normalized.ID()
	if id == "" {
		id = uuid.NewString()
		normalized[store.IDField] = id
	}

	body, err := json.Marshal(normalized)
	if err != nil {
		return "", fmt.Errorf("encoding document: %w", err)
	}

	_, err = c.q.Exec(ctx,
		`INSERT INTO documents (collection, id, body) VALUES ($1, $2, $3)`,
		collection, id, body,
	)
	if err != nil {
		return "", fmt.Errorf("inserting into %s: %w", collection, err)
	}
	return id, nil
}

func (c *collections) FindByID(ctx context.Context, collection, id string) (store.Document, error) {
	var body []byte
	err := c.q.QueryRow(ctx,
		`SELECT body FROM documents WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding %s %s: %w", collection, id, err)
	}
	return store.Decode(body)
}

func (c *collections) Find(ctx context.Context, collection string, filter store.Filter) ([]store.Document, error) {
	rows, err := c.selectRows(ctx, collection, filter, 0, false)
	if err != nil {
		return nil, err
	}

	docs := make([]store.Document, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, row.doc)
	}
	return docs, nil
}

func (c *collections) UpdateOne(ctx context.Context, collection string, filter store.Filter, update store.Update) (store.UpdateResult, error) {
	return c.update(ctx, collection, filter, update, 1)
}

func (c *collections) UpdateMany(ctx context.Context, collection string, filter store.Filter, update store.Update) (store.UpdateResult, error) {
	return c.update(ctx, collection, filter, update, 0)
}

func (c *collections) DeleteOne(ctx context.Context, collection string, filter store.Filter) (int64, error) {
	where, args, err := whereClause(collection, filter)
	if err != nil {
		return 0, err
	}

	tag, err := c.q.Exec(ctx,
		fmt.Sprintf(`DELETE FROM documents WHERE seq = (SELECT seq FROM documents WHERE %s ORDER BY seq LIMIT 1)`, where),
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting from %s: %w", collection, err)
	}
	return tag.RowsAffected(), nil
}

func (c *collections) update(ctx context.Context, collection string, filter store.Filter, update store.Update, limit int) (store.UpdateResult, error) {
	var result store.UpdateResult
	if err := update.Validate(); err != nil {
		return result, err
	}

	rows, err := c.selectRows(ctx, collection, filter, limit, true)
	if err != nil {
		return result, err
	}

	for _, row := range rows {
		result.Matched++
		changed, err := store.Apply(row.doc, update)
		if err != nil {
			return result, fmt.Errorf("updating %s %s: %w", collection, row.doc.ID(), err)
		}
		if !changed {
			continue
		}

		body, err := json.Marshal(row.doc)
		if err != nil {
			return result, fmt.Errorf("encoding document: %w", err)
		}
		_, err = c.q.Exec(ctx,
			`UPDATE documents SET body = $1, updated_at = now() WHERE seq = $2`,
			body, row.seq,
		)
		if err != nil {
			return result, fmt.Errorf("updating %s %s: %w", collection, row.doc.ID(), err)
		}
		result.Modified++
	}
	return result, nil
}

type docRow struct {
	seq int64
	doc store.Document
}

func (c *collections) selectRows(ctx context.Context, collection string, filter store.Filter, limit int, lock bool) ([]docRow, error) {
	where, args, err := whereClause(collection, filter)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT seq, body FROM documents WHERE %s ORDER BY seq`, where)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	if lock {
		query += " FOR UPDATE"
	}

	rows, err := c.q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", collection, err)
	}
	defer rows.Close()

	var out []docRow
	for rows.Next() {
		var row docRow
		var body []byte
		if err := rows.Scan(&row.seq, &body); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		row.doc, err = store.Decode(body)
		if err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating documents: %w", err)
	}
	return out, nil
}

func whereClause(collection string, filter store.Filter) (string, []any, error) {
	if err := filter.Validate(); err != nil {
		return "", nil, err
	}

	clauses := []string{"collection = $1"}
	args := []any{collection}
	next := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.ID != "" {
		clauses = append(clauses, "id = "+next(filter.ID))
	}
	for _, field := range sortedKeys(filter.Equals) {
		path := next(store.SplitPath(field))
		clauses = append(clauses, fmt.Sprintf(
			"jsonb_typeof(body #> %[1]s::text[]) = 'string' AND body #>> %[1]s::text[] = %[2]s",
			path, next(filter.Equals[field])))
	}
	for _, field := range sortedKeys(filter.Contains) {
		path := next(store.SplitPath(field))
		clauses = append(clauses, fmt.Sprintf(
			"jsonb_typeof(body #> %[1]s::text[]) = 'array' AND body #> %[1]s::text[] @> jsonb_build_array(%[2]s::text)",
			path, next(filter.Contains[field])))
	}

	return strings.Join(clauses, " AND "), args, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
