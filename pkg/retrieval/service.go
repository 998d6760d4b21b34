package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"spacey/pkg/ai"
	"spacey/pkg/domain"
	"spacey/pkg/vectorindex"
)

const (
	// NoResultsAnswer is returned when nothing matched, without calling the
	// answerer.
	NoResultsAnswer = "No matching content was found for this query."
	// NoDocumentAnswer is returned by GetAnswer for content without chunks.
	NoDocumentAnswer = "This content has no indexed text to answer from."
)

// Index is the read side of the vector index.
type Index interface {
	Query(ctx context.Context, text string, filter vectorindex.Filter, maxResults int) ([]domain.Hit, error)
}

// Answerer synthesizes an answer from document passages.
type Answerer interface {
	Answer(ctx context.Context, documents []string, question, userID string) (string, error)
}

// Config wires a Service.
type Config struct {
	Index    Index
	Answerer Answerer
	// MaxResults bounds the hits of one search. Defaults to 10.
	MaxResults int
	// MaxDocumentChunks bounds the passages handed to the answerer by
	// GetAnswer. Defaults to 200. Longer documents are answered from their
	// most similar chunks only.
	MaxDocumentChunks int
	Logger            *slog.Logger
}

// Service answers free-text questions over a user's indexed content.
type Service struct {
	index             Index
	answerer          Answerer
	maxResults        int
	maxDocumentChunks int
	logger            *slog.Logger
}

// New validates cfg and builds a Service.
func New(cfg Config) (*Service, error) {
	if cfg.Index == nil {
		return nil, fmt.Errorf("%w: index required", domain.ErrConfiguration)
	}
	if cfg.Answerer == nil {
		return nil, fmt.Errorf("%w: answerer required", domain.ErrConfiguration)
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = 10
	}
	maxChunks := cfg.MaxDocumentChunks
	if maxChunks <= 0 {
		maxChunks = 200
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		index:             cfg.Index,
		answerer:          cfg.Answerer,
		maxResults:        maxResults,
		maxDocumentChunks: maxChunks,
		logger:            logger,
	}, nil
}

// Search queries the user's chunks of the requested source types (all types
// when types is empty) and groups the matching content ids by type in rank
// order. The answer is synthesized from the best chunk of each type that
// matched.
func (s *Service) Search(ctx context.Context, query, userID string, types []domain.SourceType) (domain.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return domain.SearchResult{}, errors.New("query required")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.SearchResult{}, errors.New("user id required")
	}
	types = uniqueTypes(types)
	if len(types) == 0 {
		types = domain.AllSourceTypes
	}

	hits, err := s.index.Query(ctx, query, vectorindex.Filter{
		UserID:     vectorindex.Eq(userID),
		SourceType: vectorindex.TypesIn(types...),
	}, s.maxResults)
	if err != nil {
		return domain.SearchResult{}, err
	}

	byType := make(map[domain.SourceType][]domain.Hit, len(types))
	for _, t := range types {
		byType[t] = nil
	}
	for _, hit := range hits {
		if _, ok := byType[hit.Metadata.SourceType]; !ok {
			continue
		}
		byType[hit.Metadata.SourceType] = append(byType[hit.Metadata.SourceType], hit)
	}

	groups := make([]domain.SearchGroup, 0, len(types))
	var passages []string
	for _, t := range types {
		typed := byType[t]
		if len(typed) == 0 {
			continue
		}
		groups = append(groups, domain.SearchGroup{Type: t, IDs: sourceIDs(typed)})
		passages = append(passages, typed[0].Text)
	}

	result := domain.SearchResult{Groups: groups, Answer: NoResultsAnswer}
	if len(passages) == 0 {
		return result, nil
	}
	answer, err := s.answerer.Answer(ai.WithUser(ctx, userID), passages, query, userID)
	if err != nil {
		return domain.SearchResult{}, err
	}
	result.Answer = answer
	s.logger.Debug("search answered", "user_id", userID, "hits", len(hits), "groups", len(groups))
	return result, nil
}

// GetAnswer answers question from every chunk of one content record owned
// by userID. Content without chunks, or owned by someone else, yields a
// fixed answer.
func (s *Service) GetAnswer(ctx context.Context, contentID, question, userID string) (domain.DocumentAnswer, error) {
	contentID = strings.TrimSpace(contentID)
	question = strings.TrimSpace(question)
	userID = strings.TrimSpace(userID)
	switch {
	case contentID == "":
		return domain.DocumentAnswer{}, errors.New("content id required")
	case question == "":
		return domain.DocumentAnswer{}, errors.New("question required")
	case userID == "":
		return domain.DocumentAnswer{}, errors.New("user id required")
	}

	hits, err := s.index.Query(ctx, question, vectorindex.Filter{
		SourceID: vectorindex.Eq(contentID),
		UserID:   vectorindex.Eq(userID),
	}, s.maxDocumentChunks)
	if err != nil {
		return domain.DocumentAnswer{}, err
	}
	if len(hits) == s.maxDocumentChunks {
		s.logger.Info("document answer truncated to most similar chunks",
			"content_id", contentID, "user_id", userID, "max_chunks", s.maxDocumentChunks)
	}
	docs := make([]string, 0, len(hits))
	for _, hit := range hits {
		docs = append(docs, hit.Text)
	}
	if len(docs) == 0 {
		return domain.DocumentAnswer{Answer: NoDocumentAnswer, Documents: docs}, nil
	}
	answer, err := s.answerer.Answer(ai.WithUser(ctx, userID), docs, question, userID)
	if err != nil {
		return domain.DocumentAnswer{}, err
	}
	return domain.DocumentAnswer{Answer: answer, Documents: docs}, nil
}

func sourceIDs(hits []domain.Hit) []string {
	seen := make(map[string]struct{}, len(hits))
	ids := make([]string, 0, len(hits))
	for _, hit := range hits {
		id := hit.Metadata.SourceID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

func uniqueTypes(types []domain.SourceType) []domain.SourceType {
	out := make([]domain.SourceType, 0, len(types))
	seen := make(map[domain.SourceType]struct{}, len(types))
	for _, t := range types {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
