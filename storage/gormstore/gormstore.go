// Package gormstore keeps chat bindings in a GORM-managed table, normally on MySQL.
package gormstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"casdoorlink/core"

	gomysql "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository struct {
	db *gorm.DB
}

// casdoorBinding is the row layout. Tokens are TEXT because Casdoor access
// tokens are JWTs and sealed tokens are longer still.
type casdoorBinding struct {
	ID              string    `gorm:"primaryKey;size:50"`
	CasdoorUsername string    `gorm:"size:100;not null;index:idx_casdoor_bindings_username"`
	AccessToken     string    `gorm:"type:text;not null"`
	RefreshToken    string    `gorm:"type:text;not null"`
	BindTime        time.Time `gorm:"not null"`
}

func (casdoorBinding) TableName() string { return "casdoor_bindings" }

// New opens a MySQL connection using the provided DSN and runs migrations.
func New(dsn string) (*Repository, error) {
	cfg, err := MySQLConfig(dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(mysql.New(mysql.Config{DSN: cfg.FormatDSN()}), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return NewFromDB(db)
}

// MySQLConfig parses dsn and forces DATETIME columns to scan into time.Time
// in UTC, whatever the DSN says.
func MySQLConfig(dsn string) (*gomysql.Config, error) {
	cfg, err := gomysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	return cfg, nil
}

// NewFromDB wraps an existing *gorm.DB, e.g. in-memory sqlite in tests.
func NewFromDB(db *gorm.DB) (*Repository, error) {
	if db == nil {
		return nil, errors.New("nil db")
	}
	if err := RunMigrations(db); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func RunMigrations(db *gorm.DB) error {
	mig := db.Migrator()

	if !mig.HasTable(&casdoorBinding{}) {
		if err := mig.CreateTable(&casdoorBinding{}); err != nil {
			return err
		}
	}
	if !mig.HasIndex(&casdoorBinding{}, "idx_casdoor_bindings_username") {
		if err := mig.CreateIndex(&casdoorBinding{}, "idx_casdoor_bindings_username"); err != nil {
			return err
		}
	}
	return nil
}

func (r *Repository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r *Repository) FindBinding(ctx context.Context, chatUserID string) (*core.BindingRecord, error) {
	var row casdoorBinding
	err := r.db.WithContext(ctx).Where("id = ?", chatUserID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &core.BindingRecord{
		ID:               row.ID,
		ExternalUsername: row.CasdoorUsername,
		AccessToken:      row.AccessToken,
		RefreshToken:     row.RefreshToken,
		BoundAt:          row.BindTime,
	}, nil
}

func (r *Repository) SaveBinding(ctx context.Context, record *core.BindingRecord) error {
	row := casdoorBinding{
		ID:              record.ID,
		CasdoorUsername: record.ExternalUsername,
		AccessToken:     record.AccessToken,
		RefreshToken:    record.RefreshToken,
		BindTime:        record.BoundAt,
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"casdoor_username", "access_token", "refresh_token", "bind_time"}),
	}).Create(&row).Error
}

func (r *Repository) CountBindings(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&casdoorBinding{}).Count(&count).Error
	return count, err
}
