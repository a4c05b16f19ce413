package postgres

import (
	"context"

	"github.com/uptrace/bun"

	"github.com/ssaillesh/Booking-agent/internal/kb"
)

// KBRepo ranks knowledge-base articles with Postgres full-text search over a
// generated tsvector column (see migrations).
type KBRepo struct {
	db *bun.DB
}

func NewKBRepo(db *bun.DB) *KBRepo {
	return &KBRepo{db: db}
}

func (r *KBRepo) Search(ctx context.Context, query string, topK int) ([]kb.Result, error) {
	var rows []kb.Article
	err := r.db.NewSelect().
		Model(&rows).
		Where("search_vector @@ websearch_to_tsquery('english', ?)", query).
		OrderExpr("ts_rank(search_vector, websearch_to_tsquery('english', ?)) DESC", query).
		Limit(topK).
		Scan(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]kb.Result, 0, len(rows))
	for _, a := range rows {
		out = append(out, kb.Result{Title: a.Title, Snippet: kb.Snippet(a.Content)})
	}
	return out, nil
}

func (r *KBRepo) Upsert(ctx context.Context, article kb.Article) (kb.Article, error) {
	_, err := r.db.NewInsert().
		Model(&article).
		On("CONFLICT (title) DO UPDATE").
		Set("content = EXCLUDED.content").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("id, title, content, created_at, updated_at").
		Exec(ctx)
	if err != nil {
		return kb.Article{}, err
	}
	return article, nil
}
