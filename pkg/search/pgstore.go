package search

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/maisumh/aisearch-openai-rag-audio/pkg/embedding"
)

// PassageRow is the local pgvector table backing the postgres retrieval
// backend. A development substitute for the remote index; same contract.
type PassageRow struct {
	ChunkID   string          `gorm:"column:chunk_id;primaryKey"`
	Title     string          `gorm:"column:title"`
	Chunk     string          `gorm:"column:chunk"`
	Embedding pgvector.Vector `gorm:"column:embedding;type:vector(768)"`
}

func (PassageRow) TableName() string {
	return "passages"
}

type PgStore struct {
	db       *gorm.DB
	provider embedding.Provider
}

func NewPgStore(db *gorm.DB, provider embedding.Provider) *PgStore {
	return &PgStore{
		db:       db,
		provider: provider,
	}
}

func (s *PgStore) Query(ctx context.Context, q Query) (*Result, error) {
	topK := q.TopK
	if topK <= 0 {
		topK = defaultTopK
	}

	if len(q.FilterIDs) > 0 {
		return s.lookupByIDs(ctx, q.FilterIDs)
	}

	if !q.UseVectorQuery {
		return s.lexicalQuery(ctx, q.Text, topK)
	}

	vector := q.Vector
	if len(vector) == 0 {
		if q.Text == "" {
			return nil, fmt.Errorf("vector query requested with neither text nor embedding")
		}
		embeddingRes, err := s.provider.Generate(q.Text, "RETRIEVAL_QUERY")
		if err != nil {
			return nil, fmt.Errorf("%w: embedding generation failed: %v", ErrRetrievalUnavailable, err)
		}
		vector = embeddingRes.Embedding.Values
	}

	// Cosine distance in pgvector is 1 - cosine_similarity, so
	// 1 - (embedding <=> query_vector) recovers the similarity.
	type row struct {
		PassageRow
		Similarity float64
	}
	var rows []row

	queryVector := pgvector.NewVector(vector)

	err := s.db.WithContext(ctx).
		Table("passages").
		Select("passages.*, 1 - (embedding <=> ?) as similarity", queryVector).
		Order("similarity DESC").
		Limit(topK).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrievalUnavailable, err)
	}

	result := &Result{Passages: make([]Passage, 0, len(rows))}
	for _, r := range rows {
		result.Passages = append(result.Passages, Passage{
			ID:      r.ChunkID,
			Title:   r.Title,
			Content: r.Chunk,
			Score:   r.Similarity,
		})
	}
	return result, nil
}

func (s *PgStore) lookupByIDs(ctx context.Context, ids []string) (*Result, error) {
	var rows []PassageRow
	err := s.db.WithContext(ctx).
		Where("chunk_id IN ?", ids).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrievalUnavailable, err)
	}

	result := &Result{Passages: make([]Passage, 0, len(rows))}
	for _, r := range rows {
		result.Passages = append(result.Passages, Passage{
			ID:      r.ChunkID,
			Title:   r.Title,
			Content: r.Chunk,
		})
	}
	return result, nil
}

func (s *PgStore) lexicalQuery(ctx context.Context, text string, topK int) (*Result, error) {
	type row struct {
		PassageRow
		Rank float64
	}
	var rows []row

	err := s.db.WithContext(ctx).
		Table("passages").
		Select("passages.*, ts_rank(to_tsvector('english', chunk), websearch_to_tsquery('english', ?)) as rank", text).
		Where("to_tsvector('english', chunk) @@ websearch_to_tsquery('english', ?)", text).
		Order("rank DESC").
		Limit(topK).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRetrievalUnavailable, err)
	}

	result := &Result{Passages: make([]Passage, 0, len(rows))}
	for _, r := range rows {
		result.Passages = append(result.Passages, Passage{
			ID:      r.ChunkID,
			Title:   r.Title,
			Content: r.Chunk,
			Score:   r.Rank,
		})
	}
	return result, nil
}

// Migrate creates the passages table. The vector extension must already exist.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&PassageRow{})
}
