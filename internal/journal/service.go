package journal

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"multitrader/internal/dispatch"
	"multitrader/internal/store"
)

// Service 负责持久化批次流水。每个批次写一行作业记录,
// 每个条目结果写一行明细。
type Service struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewService 初始化流水服务,创建所需表结构。
func NewService(store *store.Store, logger *zap.Logger) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("journal: store 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		db:     store.DB(),
		logger: logger,
	}

	if err := s.initSchema(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Service) initSchema() error {
	stmt := `
CREATE TABLE IF NOT EXISTS batch_jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	kind TEXT NOT NULL,
	symbol TEXT NOT NULL,
	total INTEGER NOT NULL,
	success INTEGER NOT NULL,
	error INTEGER NOT NULL,
	created_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS batch_items (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	job_id INTEGER NOT NULL REFERENCES batch_jobs(id),
	item TEXT NOT NULL,
	account TEXT NOT NULL,
	status TEXT NOT NULL,
	message TEXT NOT NULL,
	order_id TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_batch_jobs_kind ON batch_jobs(kind);
CREATE INDEX IF NOT EXISTS idx_batch_items_job ON batch_items(job_id);
`
	if _, err := s.db.Exec(stmt); err != nil {
		return fmt.Errorf("journal: 初始化表失败: %w", err)
	}
	return nil
}

// RecordJob 在批次完成后落库。写入失败只记日志,
// 批次结果本身已经交付给调用方,不能因流水失败回滚。
func (s *Service) RecordJob(ctx context.Context, kind dispatch.JobKind, symbol string, summary dispatch.Summary) {
	if err := s.record(ctx, kind, symbol, summary); err != nil {
		s.logger.Warn("记录批次流水失败", zap.String("kind", string(kind)), zap.Error(err))
	}
}

func (s *Service) record(ctx context.Context, kind dispatch.JobKind, symbol string, summary dispatch.Summary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("journal: 开启事务失败: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO batch_jobs (kind, symbol, total, success, error, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		string(kind), symbol, summary.Total, summary.Success, summary.Error,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("journal: 写入作业失败: %w", err)
	}

	jobID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("journal: 获取作业ID失败: %w", err)
	}

	for item, result := range summary.Results {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO batch_items (job_id, item, account, status, message, order_id) VALUES (?, ?, ?, ?, ?, ?)`,
			jobID, item, result.Account, string(result.Status), result.Message, result.OrderID,
		); err != nil {
			return fmt.Errorf("journal: 写入条目失败: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("journal: 提交事务失败: %w", err)
	}
	return nil
}

// JobRecord 是一条落库的批次作业。
type JobRecord struct {
	ID        int64
	Kind      dispatch.JobKind
	Symbol    string
	Total     int
	Success   int
	Error     int
	CreatedAt time.Time
}

// ItemRecord 是一条落库的条目明细。
type ItemRecord struct {
	JobID   int64
	Item    string
	Account string
	Status  dispatch.ResultStatus
	Message string
	OrderID string
}

// ListJobs 按时间倒序检索最近的批次作业。kind 为空时不过滤。
func (s *Service) ListJobs(ctx context.Context, kind dispatch.JobKind, limit int) ([]JobRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, kind, symbol, total, success, error, created_at FROM batch_jobs`
	args := make([]interface{}, 0, 2)
	if kind != "" {
		query += ` WHERE kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("journal: 查询作业失败: %w", err)
	}
	defer rows.Close()

	jobs := make([]JobRecord, 0, limit)
	for rows.Next() {
		var (
			rec     JobRecord
			kindStr string
			created string
		)
		if scanErr := rows.Scan(&rec.ID, &kindStr, &rec.Symbol, &rec.Total, &rec.Success, &rec.Error, &created); scanErr != nil {
			return nil, fmt.Errorf("journal: 解析作业失败: %w", scanErr)
		}
		rec.Kind = dispatch.JobKind(kindStr)
		if ts, parseErr := time.Parse(time.RFC3339, created); parseErr == nil {
			rec.CreatedAt = ts
		}
		jobs = append(jobs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: 读取作业失败: %w", err)
	}

	return jobs, nil
}

// ListItems 返回某个作业的全部条目明细。
func (s *Service) ListItems(ctx context.Context, jobID int64) ([]ItemRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT job_id, item, account, status, message, order_id FROM batch_items WHERE job_id = ? ORDER BY id ASC`,
		jobID,
	)
	if err != nil {
		return nil, fmt.Errorf("journal: 查询条目失败: %w", err)
	}
	defer rows.Close()

	var items []ItemRecord
	for rows.Next() {
		var (
			rec    ItemRecord
			status string
		)
		if scanErr := rows.Scan(&rec.JobID, &rec.Item, &rec.Account, &status, &rec.Message, &rec.OrderID); scanErr != nil {
			return nil, fmt.Errorf("journal: 解析条目失败: %w", scanErr)
		}
		rec.Status = dispatch.ResultStatus(status)
		items = append(items, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("journal: 读取条目失败: %w", err)
	}

	return items, nil
}
