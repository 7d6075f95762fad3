package search

import (
	"context"
	"log/slog"
)

// RecordLoader reads complaint records from the primary store for reindexing.
type RecordLoader interface {
	LoadRecords(ctx context.Context, organizationID int64) ([]ComplaintRecord, error)
}

// Service is the facade that tries Meilisearch first and falls back to PG FTS.
type Service struct {
	primary  Searcher
	indexer  Indexer
	fallback Searcher
	loader   RecordLoader
	logger   *slog.Logger
}

// NewService creates a search service. meili may be nil if Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS, logger *slog.Logger) *Service {
	s := &Service{fallback: pgfts, loader: pgfts}
	if meili != nil {
		s.primary = meili
		s.indexer = meili
	}
	return s.withLogger(logger)
}

func (s *Service) withLogger(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s.logger = logger.With(slog.String("component", "search"))
	return s
}

// Search tries Meilisearch if healthy, otherwise falls back to PG FTS. Both
// paths apply q.Scope, so the fallback never widens what a caller can see.
func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.primary != nil && s.primary.Healthy() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("meilisearch error, falling back to pgfts", slog.String("error", err.Error()))
	}

	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.logger.Error("pgfts search failed", slog.String("error", err.Error()))
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

func (s *Service) indexReady() bool {
	return s.indexer != nil && s.primary != nil && s.primary.Healthy()
}

// IndexComplaint indexes a complaint (fire-and-forget to Meilisearch).
func (s *Service) IndexComplaint(rec ComplaintRecord) {
	if !s.indexReady() {
		return
	}
	go func() {
		if err := s.indexer.IndexComplaints([]ComplaintRecord{rec}); err != nil {
			s.logger.Warn("index complaint", slog.Int64("complaint_id", rec.ID), slog.String("error", err.Error()))
		}
	}()
}

// ReindexOrganization pushes every complaint of one organization back into
// the index. Used after a department delete detaches its complaints.
func (s *Service) ReindexOrganization(ctx context.Context, organizationID int64) {
	if !s.indexReady() || s.loader == nil {
		return
	}
	go s.reindex(context.WithoutCancel(ctx), organizationID)
}

// ReindexAllFromPG reindexes every complaint from PostgreSQL into Meilisearch.
func (s *Service) ReindexAllFromPG(ctx context.Context) {
	if !s.indexReady() || s.loader == nil {
		return
	}
	s.reindex(ctx, 0)
}

func (s *Service) reindex(ctx context.Context, organizationID int64) {
	records, err := s.loader.LoadRecords(ctx, organizationID)
	if err != nil {
		s.logger.Error("reindex load failed", slog.String("error", err.Error()))
		return
	}
	if err := s.indexer.IndexComplaints(records); err != nil {
		s.logger.Error("reindex complaints", slog.String("error", err.Error()))
		return
	}
	s.logger.Info("reindexed complaints", slog.Int("count", len(records)), slog.Int64("organization_id", organizationID))
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
