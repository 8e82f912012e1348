// Package history persists finished workflow runs and their per-stage
// attempts so the dashboard can show past runs after a reconnect.
package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/BaSui01/ticketflow/config"
	"github.com/BaSui01/ticketflow/internal/metrics"
	"github.com/BaSui01/ticketflow/types"
)

// WorkflowRun is one finished run.
type WorkflowRun struct {
	ID             uint   `gorm:"primaryKey"`
	RunID          string `gorm:"uniqueIndex;size:64"`
	Success        bool
	TicketKey      string `gorm:"size:64"`
	TicketURL      string `gorm:"size:512"`
	ErrorCode      string `gorm:"size:64"`
	ErrorMessage   string
	QualityMetrics string `gorm:"type:text"` // JSON map stage -> score
	DurationMillis int64
	CreatedAt      time.Time

	Attempts []StageAttempt `gorm:"foreignKey:WorkflowRunID"`
}

// StageAttempt is one stage attempt within a run, including retried
// attempts that did not pass the quality gate.
type StageAttempt struct {
	ID             uint `gorm:"primaryKey"`
	WorkflowRunID  uint `gorm:"index"`
	Seq            int
	StageName      string `gorm:"size:32"`
	Success        bool
	QualityScore   float64
	ErrorCode      string `gorm:"size:64"`
	DurationMillis int64
}

// Store is the run history store backed by GORM.
type Store struct {
	db        *gorm.DB
	collector *metrics.Collector
	logger    *zap.Logger
}

// Open connects to the configured database, runs migrations, and returns the
// store.
func Open(cfg config.DatabaseConfig, collector *metrics.Collector, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if err := db.AutoMigrate(&WorkflowRun{}, &StageAttempt{}); err != nil {
		return nil, fmt.Errorf("migrate history schema: %w", err)
	}

	logger.Info("history store opened", zap.String("driver", cfg.Driver))
	return &Store{
		db:        db,
		collector: collector,
		logger:    logger.With(zap.String("component", "history")),
	}, nil
}

func dialectorFor(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	switch cfg.Driver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Name, cfg.SSLMode)
		return postgres.Open(dsn), nil
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
			cfg.User, cfg.Password, cfg.Host, cfg.Port, cfg.Name)
		return mysql.Open(dsn), nil
	case "sqlite":
		path := cfg.Path
		if path == "" {
			path = "ticketflow.db"
		}
		return sqlite.Open(path), nil
	default:
		return nil, fmt.Errorf("unsupported database driver: %q", cfg.Driver)
	}
}

// RecordRun stores a finished run with its attempt log.
func (s *Store) RecordRun(ctx context.Context, result *types.FinalResult, attempts []types.StageResult) error {
	started := time.Now()

	run := WorkflowRun{
		RunID:          result.RunID,
		Success:        result.Success,
		TicketKey:      result.TicketKey,
		TicketURL:      result.TicketURL,
		DurationMillis: result.TotalDuration.Milliseconds(),
	}
	if result.Error != nil {
		run.ErrorCode = string(result.Error.Code)
		run.ErrorMessage = result.Error.Message
	}
	if len(result.QualityMetrics) > 0 {
		raw, err := json.Marshal(result.QualityMetrics)
		if err == nil {
			run.QualityMetrics = string(raw)
		}
	}
	for i, a := range attempts {
		att := StageAttempt{
			Seq:            i,
			StageName:      a.StageName,
			Success:        a.Success,
			QualityScore:   a.QualityScore,
			DurationMillis: a.Duration.Milliseconds(),
		}
		if a.Error != nil {
			att.ErrorCode = string(a.Error.Code)
		}
		run.Attempts = append(run.Attempts, att)
	}

	err := s.db.WithContext(ctx).Create(&run).Error
	if s.collector != nil {
		s.collector.RecordDBQuery("record_run", time.Since(started))
	}
	if err != nil {
		return fmt.Errorf("record run %s: %w", result.RunID, err)
	}
	return nil
}

// Get loads one run with its attempts.
func (s *Store) Get(ctx context.Context, runID string) (*WorkflowRun, error) {
	started := time.Now()
	var run WorkflowRun
	err := s.db.WithContext(ctx).Preload("Attempts").Where("run_id = ?", runID).First(&run).Error
	if s.collector != nil {
		s.collector.RecordDBQuery("get_run", time.Since(started))
	}
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", runID, err)
	}
	return &run, nil
}

// List returns the most recent runs, newest first, without attempts.
func (s *Store) List(ctx context.Context, limit int) ([]WorkflowRun, error) {
	if limit <= 0 {
		limit = 20
	}
	started := time.Now()
	var runs []WorkflowRun
	err := s.db.WithContext(ctx).Order("created_at desc").Limit(limit).Find(&runs).Error
	if s.collector != nil {
		s.collector.RecordDBQuery("list_runs", time.Since(started))
	}
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	return runs, nil
}

// Ping checks database connectivity for health reporting.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
