// Package kb answers natural-language questions from a small knowledge base.
// The scheduling core makes no assumptions about its ranking; implementations
// only need to return the topK best-matching articles in order.
package kb

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	defaultTopK = 3
	maxTopK     = 20
	snippetLen  = 200
)

type Article struct {
	bun.BaseModel `bun:"table:kb_articles"`

	ID        uuid.UUID `bun:"id,pk,type:uuid"`
	Title     string    `bun:"title,notnull"`
	Content   string    `bun:"content,notnull"`
	CreatedAt time.Time `bun:"created_at,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
}

func (a *Article) BeforeAppendModel(ctx context.Context, query bun.Query) error {
	now := time.Now().UTC()
	switch query.(type) {
	case *bun.InsertQuery:
		if a.ID == uuid.Nil {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			a.ID = id
		}
		if a.CreatedAt.IsZero() {
			a.CreatedAt = now
		}
		if a.UpdatedAt.IsZero() {
			a.UpdatedAt = now
		}
	case *bun.UpdateQuery:
		a.UpdatedAt = now
	}
	return nil
}

type Result struct {
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

type Repository interface {
	Search(ctx context.Context, query string, topK int) ([]Result, error)
	Upsert(ctx context.Context, article Article) (Article, error)
}

type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &ValidationError{msg: "query is required"}
	}
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}
	return s.repo.Search(ctx, query, topK)
}

func (s *Service) Upsert(ctx context.Context, article Article) (Article, error) {
	article.Title = strings.TrimSpace(article.Title)
	article.Content = strings.TrimSpace(article.Content)
	if article.Title == "" {
		return Article{}, &ValidationError{msg: "title is required"}
	}
	if article.Content == "" {
		return Article{}, &ValidationError{msg: "content is required"}
	}
	return s.repo.Upsert(ctx, article)
}

// Snippet trims content to a short display excerpt, cutting at a word
// boundary where possible.
func Snippet(content string) string {
	content = strings.Join(strings.Fields(content), " ")
	if len(content) <= snippetLen {
		return content
	}
	cut := content[:snippetLen]
	if i := strings.LastIndexByte(cut, ' '); i > 0 {
		cut = cut[:i]
	}
	return cut + "…"
}
