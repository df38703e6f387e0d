package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"questlog/internal/store"
)

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// collections implements store.Collections over a *sql.DB or *sql.Tx.
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

	_, err = c.q.ExecContext(ctx,
		`INSERT INTO documents (collection, id, body) VALUES (?, ?, ?)`,
		collection, id, string(body),
	)
	if err != nil {
		return "", fmt.Errorf("inserting into %s: %w", collection, err)
	}
	return id, nil
}

func (c *collections) FindByID(ctx context.Context, collection, id string) (store.Document, error) {
	var body string
	err := c.q.QueryRowContext(ctx,
		`SELECT body FROM documents WHERE collection = ? AND id = ?`,
		collection, id,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("finding %s %s: %w", collection, id, err)
	}
	return store.Decode([]byte(body))
}

func (c *collections) Find(ctx context.Context, collection string, filter store.Filter) ([]store.Document, error) {
	rows, err := c.selectRows(ctx, collection, filter, 0)
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

	res, err := c.q.ExecContext(ctx,
		fmt.Sprintf(`DELETE FROM documents WHERE seq = (SELECT seq FROM documents WHERE %s ORDER BY seq LIMIT 1)`, where),
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting from %s: %w", collection, err)
	}
	count, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("counting deleted rows: %w", err)
	}
	return count, nil
}

func (c *collections) update(ctx context.Context, collection string, filter store.Filter, update store.Update, limit int) (store.UpdateResult, error) {
	var result store.UpdateResult
	if err := update.Validate(); err != nil {
		return result, err
	}

	rows, err := c.selectRows(ctx, collection, filter, limit)
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
		_, err = c.q.ExecContext(ctx,
			`UPDATE documents SET body = ?, updated_at = strftime('%Y-%m-%dT%H:%M:%fZ', 'now') WHERE seq = ?`,
			string(body), row.seq,
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

// selectRows reads every matching row before returning so callers can issue
// writes on the same connection.
func (c *collections) selectRows(ctx context.Context, collection string, filter store.Filter, limit int) ([]docRow, error) {
	where, args, err := whereClause(collection, filter)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`SELECT seq, body FROM documents WHERE %s ORDER BY seq`, where)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", collection, err)
	}
	defer rows.Close()

	var out []docRow
	for rows.Next() {
		var row docRow
		var body string
		if err := rows.Scan(&row.seq, &body); err != nil {
			return nil, fmt.Errorf("scanning document: %w", err)
		}
		row.doc, err = store.Decode([]byte(body))
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

	clauses := []string{"collection = ?"}
	args := []any{collection}

	if filter.ID != "" {
		clauses = append(clauses, "id = ?")
		args = append(args, filter.ID)
	}
	for _, field := range sortedKeys(filter.Equals) {
		clauses = append(clauses, "json_type(body, ?) = 'text' AND json_extract(body, ?) = ?")
		path := jsonPath(field)
		args = append(args, path, path, filter.Equals[field])
	}
	for _, field := range sortedKeys(filter.Contains) {
		clauses = append(clauses,
			"json_type(body, ?) = 'array' AND EXISTS (SELECT 1 FROM json_each(documents.body, ?) AS member WHERE member.value = ?)")
		path := jsonPath(field)
		args = append(args, path, path, filter.Contains[field])
	}

	return strings.Join(clauses, " AND "), args, nil
}

func jsonPath(field string) string {
	return "$." + field
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
