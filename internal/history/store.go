package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BaSui01/localpilot/automation"
	"github.com/BaSui01/localpilot/config"
	"github.com/BaSui01/localpilot/types"
	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// =============================================================================
// 🗄️ 运行历史存储
// =============================================================================

// Run 是一次 start / runPrompt 的持久化记录
type Run struct {
	ID          string    `gorm:"primaryKey;size:36" json:"id"`
	Kind        string    `gorm:"size:16;index" json:"kind"`
	Prompt      string    `gorm:"type:text" json:"prompt,omitempty"`
	Backend     string    `gorm:"size:32" json:"backend,omitempty"`
	Success     bool      `json:"success"`
	Message     string    `gorm:"type:text" json:"message,omitempty"`
	Error       string    `gorm:"type:text" json:"error,omitempty"`
	Code        string    `gorm:"size:64" json:"code,omitempty"`
	Screenshots []string  `gorm:"serializer:json" json:"screenshots"`
	OutputLines int       `json:"output_lines"`
	StartedAt   time.Time `gorm:"index" json:"started_at"`
	DurationMS  int64     `json:"duration_ms"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName 指定表名
func (Run) TableName() string { return "automation_runs" }

// Metrics receives query timings and pool gauges.
type Metrics interface {
	RecordDBQuery(database, operation string, duration time.Duration)
	RecordDBConnections(database string, open, idle int)
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithKeep keeps only the newest n runs; 0 disables pruning.
func WithKeep(n int) Option {
	return func(s *Store) { s.keep = n }
}

// WithMetrics reports query durations and pool stats.
func WithMetrics(m Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithoutMigration skips AutoMigrate for schemas managed elsewhere.
func WithoutMigration() Option {
	return func(s *Store) { s.migrate = false }
}

// WithMaxRetries sets how often a write transaction is retried on
// deadlocks and dropped connections.
func WithMaxRetries(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// Store 基于 GORM 的运行历史，实现 automation.Recorder
type Store struct {
	db         *gorm.DB
	sqlDB      *sql.DB
	name       string
	keep       int
	migrate    bool
	maxRetries int
	metrics    Metrics
	logger     *zap.Logger

	mu     sync.RWMutex
	closed bool
}

var _ automation.Recorder = (*Store)(nil)

// Dialector returns the gorm dialector for the configured driver.
func Dialector(cfg config.HistoryConfig) (gorm.Dialector, error) {
	dsn := cfg.DSN()
	switch cfg.Driver {
	case "sqlite":
		if dsn == "" {
			return nil, fmt.Errorf("sqlite history requires a database file name")
		}
		return sqlite.Open(dsn), nil
	case "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported history driver %q", cfg.Driver)
	}
}

// Open 按配置打开数据库并配置连接池
func Open(cfg config.HistoryConfig, opts ...Option) (*Store, error) {
	dialector, err := Dialector(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormlogger.Discard})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s history database: %w", cfg.Driver, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	opts = append([]Option{WithKeep(cfg.Keep)}, opts...)
	s, err := New(db, opts...)
	if err != nil {
		_ = sqlDB.Close()
		return nil, err
	}
	s.name = cfg.Driver
	return s, nil
}

// New wraps an open gorm DB and migrates the schema.
func New(db *gorm.DB, opts ...Option) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	s := &Store{
		db:         db,
		sqlDB:      sqlDB,
		name:       db.Dialector.Name(),
		migrate:    true,
		maxRetries: 3,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(zap.String("component", "history"))

	if s.migrate {
		if err := db.AutoMigrate(&Run{}); err != nil {
			return nil, fmt.Errorf("failed to migrate history schema: %w", err)
		}
	}
	s.logger.Info("run history ready", zap.String("driver", s.name), zap.Int("keep", s.keep))
	return s, nil
}

// =============================================================================
// 🎯 核心方法
// =============================================================================

// FromRecord converts an orchestrator record into a row.
func FromRecord(rec automation.RunRecord) Run {
	run := Run{
		ID:         rec.RunID,
		Kind:       string(rec.Kind),
		Prompt:     rec.Prompt,
		Backend:    rec.Backend,
		StartedAt:  rec.StartedAt.UTC(),
		DurationMS: rec.Duration.Milliseconds(),
	}
	if res := rec.Result; res != nil {
		run.Success = res.Success
		run.Message = res.Message
		run.Error = res.Error
		run.Code = string(res.Code)
		run.Screenshots = append([]string{}, res.Screenshots...)
		run.OutputLines = len(res.Output)
		if run.Backend == "" {
			run.Backend = res.Backend
		}
	}
	if run.Screenshots == nil {
		run.Screenshots = []string{}
	}
	return run
}

// Record 写入一次运行，并按 keep 清理旧记录
func (s *Store) Record(ctx context.Context, rec automation.RunRecord) error {
	if rec.RunID == "" {
		return types.NewError(types.ErrInvalidRequest, "run id is required")
	}
	run := FromRecord(rec)
	start := time.Now()
	err := s.withTransactionRetry(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&run).Error; err != nil {
			return err
		}
		return s.prune(tx)
	})
	s.observe("record", start)
	if err != nil {
		return fmt.Errorf("failed to record run %s: %w", rec.RunID, err)
	}
	s.logger.Debug("run recorded", zap.String("run_id", run.ID), zap.Bool("success", run.Success))
	return nil
}

// prune 删除超出 keep 的最旧记录；先计数再按 id 删除，三种方言都支持
func (s *Store) prune(tx *gorm.DB) error {
	if s.keep <= 0 {
		return nil
	}
	var total int64
	if err := tx.Model(&Run{}).Count(&total).Error; err != nil {
		return err
	}
	excess := int(total) - s.keep
	if excess <= 0 {
		return nil
	}
	var ids []string
	if err := tx.Model(&Run{}).Order("started_at asc, id asc").Limit(excess).Pluck("id", &ids).Error; err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	return tx.Where("id IN ?", ids).Delete(&Run{}).Error
}

// List 返回最新的 limit 条记录，limit<=0 时取 50
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	start := time.Now()
	var runs []Run
	err = db.WithContext(ctx).Order("started_at desc, id desc").Limit(limit).Find(&runs).Error
	s.observe("list", start)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// Get 按 id 查询；不存在时返回 NOT_FOUND
func (s *Store) Get(ctx context.Context, id string) (*Run, error) {
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	start := time.Now()
	var run Run
	err = db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	s.observe("get", start)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.Errorf(types.ErrNotFound, "run %s not found", id).WithHTTPStatus(404)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return &run, nil
}

// Count 返回记录总数
func (s *Store) Count(ctx context.Context) (int64, error) {
	db, err := s.conn()
	if err != nil {
		return 0, err
	}
	var n int64
	if err := db.WithContext(ctx).Model(&Run{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count runs: %w", err)
	}
	return n, nil
}

// Ping 检查数据库连接
func (s *Store) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return fmt.Errorf("history store is closed")
	}
	return s.sqlDB.PingContext(ctx)
}

// Stats 返回连接池统计信息
func (s *Store) Stats() sql.DBStats {
	return s.sqlDB.Stats()
}

// Close 关闭连接池
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.logger.Info("closing history store")
	return s.sqlDB.Close()
}

func (s *Store) conn() (*gorm.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("history store is closed")
	}
	return s.db, nil
}

func (s *Store) observe(op string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordDBQuery(s.name, op, time.Since(start))
	}
}

// =============================================================================
// 🏥 健康检查
// =============================================================================

// StartHealthCheck pings the database every interval and reports pool
// gauges until ctx is done or the store is closed.
func (s *Store) StartHealthCheck(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			s.mu.RLock()
			closed := s.closed
			s.mu.RUnlock()
			if closed {
				return
			}

			pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			if err := s.Ping(pingCtx); err != nil {
				s.logger.Error("history health check failed", zap.Error(err))
			} else {
				stats := s.Stats()
				if s.metrics != nil {
					s.metrics.RecordDBConnections(s.name, stats.OpenConnections, stats.Idle)
				}
				s.logger.Debug("history health check passed",
					zap.Int("open_connections", stats.OpenConnections),
					zap.Int("in_use", stats.InUse),
					zap.Int("idle", stats.Idle),
				)
			}
			cancel()
		}
	}()
}

// =============================================================================
// 🔄 事务管理
// =============================================================================

func (s *Store) withTransactionRetry(ctx context.Context, fn func(tx *gorm.DB) error) error {
	var lastErr error
	for i := 0; i < s.maxRetries; i++ {
		db, err := s.conn()
		if err != nil {
			return err
		}
		err = db.WithContext(ctx).Transaction(fn)
		if err == nil {
			return nil
		}
		lastErr = err
		if !isRetryableError(err) {
			return err
		}

		s.logger.Warn("history transaction failed, retrying",
			zap.Int("attempt", i+1),
			zap.Int("max_retries", s.maxRetries),
			zap.Error(err),
		)

		backoff := time.Duration(1<<uint(i)) * 100 * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("transaction failed after %d retries: %w", s.maxRetries, lastErr)
}

// isRetryableError 判断错误是否可重试
func isRetryableError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, needle := range []string{
		"deadlock",
		"serialization failure", "40001",
		"connection reset", "connection refused", "broken pipe",
		"lock timeout", "lock wait timeout",
		"database is locked", // sqlite SQLITE_BUSY
		"bad connection",
	} {
		if strings.Contains(msg, needle) {
			return true
		}
	}
	return false
}
