// Package catalog manages restaurants and their menus.
package catalog

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"food-ordering-api/apperr"
	"food-ordering-api/events"
	"food-ordering-api/metrics"
	"food-ordering-api/storage"
)

type Options struct {
	// RequireApproval hides unapproved restaurants from the public.
	RequireApproval bool
	Publisher       events.Publisher
	Metrics         *metrics.Metrics
	Log             *slog.Logger
}

type Service struct {
	db              *gorm.DB
	blobs           storage.Store
	requireApproval bool
	publisher       events.Publisher
	metrics         *metrics.Metrics
	log             *slog.Logger
	now             func() time.Time
}

func NewService(db *gorm.DB, blobs storage.Store, opts Options) *Service {
	s := &Service{
		db:              db,
		blobs:           blobs,
		requireApproval: opts.RequireApproval,
		publisher:       opts.Publisher,
		metrics:         opts.Metrics,
		log:             opts.Log,
		now:             time.Now,
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.publisher == nil {
		s.publisher = events.LogPublisher{Log: s.log}
	}
	return s
}

// RequireApproval reports whether the approval gate is on.
func (s *Service) RequireApproval() bool { return s.requireApproval }

// deleteBlobs removes images after the rows referencing them are gone. Failures
// only leave orphaned files behind, so they are logged and not returned.
func (s *Service) deleteBlobs(ctx context.Context, urls ...string) {
	for _, url := range urls {
		key, ok := storage.KeyFromURL(url)
		if !ok {
			continue
		}
		if err := s.blobs.Delete(ctx, key); err != nil {
			s.log.WarnContext(ctx, "delete image failed", "key", key, "error", err)
		}
	}
}

func (s *Service) saveUpload(ctx context.Context, dir, field string, up *storage.Upload) (string, error) {
	if err := up.Validate(field); err != nil {
		return "", err
	}
	key := storage.NewKey(dir, up.Filename)
	if err := s.blobs.Save(ctx, key, up.Body); err != nil {
		return "", apperr.Dependency("store image", err)
	}
	return storage.URL(key), nil
}
