package prefs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

const defaultSQLitePath = "data/preferences.db"

// preferenceRecord は preferences テーブルの1行です。
type preferenceRecord struct {
	Key       string `gorm:"column:pref_key;primaryKey;size:191"`
	Value     string `gorm:"column:pref_value;type:text"`
	UpdatedAt time.Time
}

func (preferenceRecord) TableName() string {
	return "preferences"
}

type sqliteStore struct {
	db  *gorm.DB
	ttl time.Duration
	now func() time.Time
}

// OpenSQLite は SQLite データベースを開きます。path が空なら既定のパスです。
func OpenSQLite(path string) (*gorm.DB, error) {
	if path == "" {
		path = defaultSQLitePath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("データディレクトリの作成に失敗しました: %w", err)
		}
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite のオープンに失敗しました (%s): %w", path, err)
	}
	return db, nil
}

// NewSQLite は gorm 経由の SQLite ストアを生成し、テーブルを用意します。
// updated_at から ttl を過ぎた行は読み出されず、書き込みのたびに削除されます。
func NewSQLite(db *gorm.DB, ttl time.Duration) (Store, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlite store requires database handle")
	}
	if err := db.AutoMigrate(&preferenceRecord{}); err != nil {
		return nil, fmt.Errorf("preferences テーブルのマイグレーションに失敗しました: %w", err)
	}
	s := &sqliteStore{db: db, ttl: resolveTTL(ttl), now: func() time.Time { return time.Now().UTC() }}
	if err := s.prune(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *sqliteStore) cutoff() time.Time {
	return s.now().Add(-s.ttl)
}

// prune は有効期限切れの行を削除します。
func (s *sqliteStore) prune(ctx context.Context) error {
	if err := s.db.WithContext(ctx).Where("updated_at < ?", s.cutoff()).Delete(&preferenceRecord{}).Error; err != nil {
		return fmt.Errorf("期限切れ設定の削除に失敗しました: %w", err)
	}
	return nil
}

func (s *sqliteStore) Get(ctx context.Context, key string) (string, bool, error) {
	var rec preferenceRecord
	err := s.db.WithContext(ctx).
		Where("pref_key = ? AND updated_at >= ?", key, s.cutoff()).
		First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return rec.Value, true, nil
}

func (s *sqliteStore) Set(ctx context.Context, key, value string) error {
	if err := s.prune(ctx); err != nil {
		return err
	}
	rec := preferenceRecord{Key: key, Value: value, UpdatedAt: s.now()}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "pref_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"pref_value", "updated_at"}),
	}).Create(&rec).Error
}

func (s *sqliteStore) Delete(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Where("pref_key = ?", key).Delete(&preferenceRecord{}).Error
}

func (s *sqliteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
