package usecases

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/samirrijal/destialarm/internal/core/domain"
	"github.com/samirrijal/destialarm/internal/core/ports"
	"github.com/samirrijal/destialarm/internal/pkg/metrics"
)

// NotificationPage is one page of journaled notifications.
type NotificationPage struct {
	Items []domain.Notification `json:"items"`
	Total int                   `json:"total"`
}

// JournalService reads back notifications and trips.
type JournalService struct {
	notifications ports.NotificationRepository
	trips         ports.TripRepository
	cache         ports.CacheService
}

// NewJournalService creates a new JournalService. cache may be nil.
func NewJournalService(notifications ports.NotificationRepository, trips ports.TripRepository, cache ports.CacheService) *JournalService {
	return &JournalService{notifications: notifications, trips: trips, cache: cache}
}

// ListNotifications returns notifications newest first.
func (s *JournalService) ListNotifications(ctx context.Context, offset, limit int) (*NotificationPage, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	// Short-lived cache: alerts arrive at most a few times per trip.
	cacheKey := fmt.Sprintf("alerts:list:%d:%d", offset, limit)
	if s.cache != nil {
		if data, err := s.cache.Get(ctx, cacheKey); err == nil {
			var page NotificationPage
			if err := json.Unmarshal(data, &page); err == nil {
				metrics.CacheHits.WithLabelValues("alerts").Inc()
				return &page, nil
			}
		}
		metrics.CacheMisses.WithLabelValues("alerts").Inc()
	}

	items, total, err := s.notifications.List(ctx, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	page := &NotificationPage{Items: items, Total: total}

	if s.cache != nil {
		if data, err := json.Marshal(page); err == nil {
			_ = s.cache.Set(ctx, cacheKey, data, 5)
		}
	}
	return page, nil
}

// RecentTrips returns the latest trips, newest first.
func (s *JournalService) RecentTrips(ctx context.Context, limit int) ([]domain.Trip, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	trips, err := s.trips.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("list trips: %w", err)
	}
	return trips, nil
}
