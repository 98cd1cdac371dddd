package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"xiaoer/internal/errs"
	"xiaoer/internal/infrastructure/persistence/sqlite/model"
	"xiaoer/internal/ports"
)

// SQLiteCache is a TTL key-value store over one sqlite table. Expiry is
// advisory: Get filters expired rows, GetStale does not, and nothing is
// evicted until an overwrite or an explicit Delete.
type SQLiteCache struct {
	db  *gorm.DB
	now func() time.Time
}

var _ ports.Cache = (*SQLiteCache)(nil)

func NewSQLiteCache(db *gorm.DB) *SQLiteCache {
	return &SQLiteCache{db: db, now: time.Now}
}

func (c *SQLiteCache) Get(ctx context.Context, key string) (string, bool, error) {
	row, found, err := c.lookup(ctx, key)
	if err != nil || !found {
		return "", false, err
	}

	if c.expired(row) {
		return "", false, nil
	}
	return row.Value, true, nil
}

func (c *SQLiteCache) GetStale(ctx context.Context, key string) (string, bool, error) {
	row, found, err := c.lookup(ctx, key)
	if err != nil || !found {
		return "", false, err
	}
	return row.Value, true, nil
}

func (c *SQLiteCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	if ctx == nil {
		return errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return errs.Wrap(err, "check context")
	}

	trimmedKey := strings.TrimSpace(key)
	if trimmedKey == "" {
		return errors.New("key is required")
	}

	expiresAt := ""
	if ttl != 0 {
		expiresAt = c.now().Add(ttl).UTC().Format(time.RFC3339Nano)
	}

	row := model.EndpointKV{
		Key:       trimmedKey,
		Value:     value,
		ExpiresAt: expiresAt,
		UpdatedAt: c.now().UTC().Format(time.RFC3339Nano),
	}

	if err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "key"}},
		DoUpdates: clause.Assignments(map[string]any{
			"value":      row.Value,
			"expires_at": row.ExpiresAt,
			"updated_at": row.UpdatedAt,
		}),
	}).Create(&row).Error; err != nil {
		return errs.Wrap(err, "upsert cache key")
	}

	return nil
}

func (c *SQLiteCache) Delete(ctx context.Context, key string) (bool, error) {
	if ctx == nil {
		return false, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return false, errs.Wrap(err, "check context")
	}

	trimmedKey := strings.TrimSpace(key)
	if trimmedKey == "" {
		return false, errors.New("key is required")
	}

	result := c.db.WithContext(ctx).Where("key = ?", trimmedKey).Delete(&model.EndpointKV{})
	if result.Error != nil {
		return false, errs.Wrap(result.Error, "delete cache key")
	}
	return result.RowsAffected > 0, nil
}

func (c *SQLiteCache) Keys(ctx context.Context, prefix string, limit int) ([]string, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, errs.Wrap(err, "check context")
	}
	if limit <= 0 {
		limit = 100
	}

	var keys []string
	query := c.db.WithContext(ctx).
		Model(&model.EndpointKV{}).
		Order("key").
		Limit(limit)
	if prefix != "" {
		query = query.Where("key LIKE ?", prefix+"%")
	}
	if err := query.Pluck("key", &keys).Error; err != nil {
		return nil, errs.Wrap(err, "list cache keys")
	}
	return keys, nil
}

func (c *SQLiteCache) lookup(ctx context.Context, key string) (model.EndpointKV, bool, error) {
	if ctx == nil {
		return model.EndpointKV{}, false, errors.New("context is required")
	}
	if err := ctx.Err(); err != nil {
		return model.EndpointKV{}, false, errs.Wrap(err, "check context")
	}

	trimmedKey := strings.TrimSpace(key)
	if trimmedKey == "" {
		return model.EndpointKV{}, false, errors.New("key is required")
	}

	var row model.EndpointKV
	if err := c.db.WithContext(ctx).Where("key = ?", trimmedKey).Take(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.EndpointKV{}, false, nil
		}
		return model.EndpointKV{}, false, errs.Wrap(err, "query cache by key")
	}

	return row, true, nil
}

func (c *SQLiteCache) expired(row model.EndpointKV) bool {
	if row.ExpiresAt == "" {
		return false
	}

	expiresAt, err := time.Parse(time.RFC3339Nano, row.ExpiresAt)
	if err != nil {
		// Unreadable expiry: treat the row as expired but keep it for
		// stale reads.
		return true
	}
	return !c.now().Before(expiresAt)
}
