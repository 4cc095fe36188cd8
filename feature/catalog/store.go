package catalog

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"media-janitor/feature/catalog/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrNotFound indicates the requested catalog entry does not exist.
var ErrNotFound = errors.New("catalog: entry not found")

// upsertColumns is the fixed allow-list of columns a reconciliation upsert
// may touch. Locally owned state (protected, watch counters) is deliberately
// absent so a re-sync never clobbers it.
var upsertColumns = []string{
	"updated_at", "title", "kind", "size_bytes", "added_at",
	"quality", "resolution", "codec", "quality_profile", "rating",
	"duration_sec", "monitored", "download_status",
	"radarr_id", "sonarr_id", "source_file_id", "tags", "extra",
}

// Store is the authoritative table of known media entries.
type Store struct {
	db        *gorm.DB
	batchSize int
	logger    *zap.Logger
}

// NewStore creates a catalog store. batchSize bounds BatchUpsert chunks;
// values below 1 fall back to 500.
func NewStore(db *gorm.DB, batchSize int, logger *zap.Logger) *Store {
	if batchSize < 1 {
		batchSize = 500
	}
	return &Store{db: db, batchSize: batchSize, logger: logger}
}

// DB exposes the underlying connection for stores layered on top
// (deletion workflow transactions join catalog deletes).
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Filter selects catalog entries in List.
type Filter struct {
	Kind       models.Kind
	Watched    *bool
	Protected  *bool
	PathPrefix string
	Limit      int
	Offset     int
}

// BatchUpsert inserts or updates entries keyed by path, in bounded batches.
// Only the fixed allow-list of columns is updated on conflict.
func (s *Store) BatchUpsert(ctx context.Context, entries []models.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	for start := 0; start < len(entries); start += s.batchSize {
		end := start + s.batchSize
		if end > len(entries) {
			end = len(entries)
		}
		batch := entries[start:end]

		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "path"}},
			DoUpdates: clause.AssignmentColumns(upsertColumns),
		}).Create(&batch).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// List returns entries matching the filter plus the total match count.
func (s *Store) List(ctx context.Context, f Filter) ([]models.Entry, int64, error) {
	q := s.db.WithContext(ctx).Model(&models.Entry{})

	if f.Kind != "" {
		q = q.Where("kind = ?", f.Kind)
	}
	if f.Watched != nil {
		q = q.Where("watched = ?", *f.Watched)
	}
	if f.Protected != nil {
		q = q.Where("protected = ?", *f.Protected)
	}
	if f.PathPrefix != "" {
		q = q.Where("path LIKE ?", f.PathPrefix+"%")
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if f.Limit > 0 {
		q = q.Limit(f.Limit)
	}
	if f.Offset > 0 {
		q = q.Offset(f.Offset)
	}

	var entries []models.Entry
	if err := q.Order("path").Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// Get returns one entry by id.
func (s *Store) Get(ctx context.Context, id uint) (*models.Entry, error) {
	var entry models.Entry
	err := s.db.WithContext(ctx).First(&entry, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// GetByPath returns one entry by its path identity.
func (s *Store) GetByPath(ctx context.Context, path string) (*models.Entry, error) {
	var entry models.Entry
	err := s.db.WithContext(ctx).Where("path = ?", path).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// EntriesByKind returns all entries of one kind. Used by orphan detection.
func (s *Store) EntriesByKind(ctx context.Context, kind models.Kind) ([]models.Entry, error) {
	var entries []models.Entry
	if err := s.db.WithContext(ctx).Where("kind = ?", kind).Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// DeleteByID removes one entry.
func (s *Store) DeleteByID(ctx context.Context, id uint) error {
	return s.db.WithContext(ctx).Delete(&models.Entry{}, id).Error
}

// SetProtected flips the protected flag on one entry.
func (s *Store) SetProtected(ctx context.Context, id uint, protected bool) error {
	res := s.db.WithContext(ctx).Model(&models.Entry{}).
		Where("id = ?", id).
		Update("protected", protected)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// WatchStats is one increment of aggregated watch history for a file.
type WatchStats struct {
	Views        int64
	WatchTimeSec int64
	LastPlayedAt time.Time
	Viewers      []string
	Watched      bool
}

// MergeWatchStats merges counters additively onto the entry with the given
// path. When no entry matches the exact path, a fuzzy match by base filename
// is attempted. The merge never creates entries; an unmatched path returns
// ErrNotFound so the caller can count the skip.
func (s *Store) MergeWatchStats(ctx context.Context, path string, stats WatchStats) error {
	entry, err := s.GetByPath(ctx, path)
	if errors.Is(err, ErrNotFound) {
		entry, err = s.byFilename(ctx, filepath.Base(path))
	}
	if err != nil {
		return err
	}

	entry.ViewCount += stats.Views
	entry.WatchTimeSec += stats.WatchTimeSec
	if stats.Watched {
		entry.Watched = true
	}
	if !stats.LastPlayedAt.IsZero() {
		if entry.LastPlayedAt == nil || stats.LastPlayedAt.After(*entry.LastPlayedAt) {
			t := stats.LastPlayedAt
			entry.LastPlayedAt = &t
		}
	}
	entry.Viewers = mergeViewers(entry.Viewers, stats.Viewers)

	return s.db.WithContext(ctx).Model(entry).Select(
		"view_count", "watch_time_sec", "watched", "last_played_at", "viewers",
	).Updates(entry).Error
}

// byFilename is the fuzzy fallback used when history paths do not match the
// catalog exactly (path mappings differ between services).
func (s *Store) byFilename(ctx context.Context, name string) (*models.Entry, error) {
	if name == "" || name == "." {
		return nil, ErrNotFound
	}
	var entry models.Entry
	err := s.db.WithContext(ctx).Where("path LIKE ?", "%/"+name).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

func mergeViewers(existing models.StringList, incoming []string) models.StringList {
	seen := make(map[string]struct{}, len(existing))
	for _, v := range existing {
		seen[v] = struct{}{}
	}
	for _, v := range incoming {
		if v == "" {
			continue
		}
		if _, ok := seen[v]; !ok {
			existing = append(existing, v)
			seen[v] = struct{}{}
		}
	}
	return existing
}
