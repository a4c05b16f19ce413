package kb

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepository is a token-overlap ranked repository for tests and the
// dev-mode store driver.
type MemoryRepository struct {
	mu       sync.RWMutex
	articles map[string]Article // by title
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{articles: make(map[string]Article)}
}

func (r *MemoryRepository) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	type scored struct {
		article Article
		score   int
	}
	var matches []scored
	for _, a := range r.articles {
		score := 0
		title := strings.ToLower(a.Title)
		content := strings.ToLower(a.Content)
		for _, term := range terms {
			if strings.Contains(title, term) {
				score += 2
			}
			if strings.Contains(content, term) {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{article: a, score: score})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].article.Title < matches[j].article.Title
	})

	if len(matches) > topK {
		matches = matches[:topK]
	}
	out := make([]Result, 0, len(matches))
	for _, m := range matches {
		out = append(out, Result{Title: m.article.Title, Snippet: Snippet(m.article.Content)})
	}
	return out, nil
}

func (r *MemoryRepository) Upsert(ctx context.Context, article Article) (Article, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.articles[article.Title]; ok {
		article.ID = prev.ID
		article.CreatedAt = prev.CreatedAt
	} else if article.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return Article{}, err
		}
		article.ID = id
	}
	r.articles[article.Title] = article
	return article, nil
}

func tokenize(s string) []string {
	fields := strings.Fields(strings.ToLower(s))
	out := fields[:0]
	for _, f := range fields {
		f = strings.Trim(f, ".,!?\"'")
		if len(f) > 2 {
			out = append(out, f)
		}
	}
	return out
}
