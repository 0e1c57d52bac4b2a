package pgsink

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"IMStore/tools/errs"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	once sync.Once
	mgr  *SinkManager
)

// Config 分析库连接配置
type Config struct {
	Url         string
	MaxConns    int32
	SubBatch    int // 单事务写入行数上限
}

type SinkManager struct {
	pool     *pgxpool.Pool
	subBatch int
}

// Init 初始化分析库连接池（单例）
func Init(ctx context.Context, c Config) error {
	var initErr error
	once.Do(func() {
		cfg, err := pgxpool.ParseConfig(c.Url)
		if err != nil {
			initErr = err
			return
		}
		if c.MaxConns > 0 {
			cfg.MaxConns = c.MaxConns
		}
		pool, err := pgxpool.NewWithConfig(ctx, cfg)
		if err != nil {
			initErr = err
			return
		}
		if err := pool.Ping(ctx); err != nil {
			initErr = err
			return
		}
		sb := c.SubBatch
		if sb <= 0 {
			sb = 1000
		}
		mgr = &SinkManager{pool: pool, subBatch: sb}
	})
	return initErr
}

func Get() *SinkManager {
	if mgr == nil {
		panic("pg sink not initialized, call Init first")
	}
	return mgr
}

func TryGet() (*SinkManager, bool) { return mgr, mgr != nil }

func (s *SinkManager) Pool() *pgxpool.Pool { return s.pool }

func (s *SinkManager) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// BulkInsert 按子批写入：每 subBatch 行一个事务，整批任一子批失败即返回错误。
// ON CONFLICT DO NOTHING 让重投的批次尽量幂等。
func (s *SinkManager) BulkInsert(ctx context.Context, table string, columns []string, rows [][]any) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	sql := buildInsertSQL(table, columns)

	written := 0
	for from := 0; from < len(rows); from += s.subBatch {
		to := from + s.subBatch
		if to > len(rows) {
			to = len(rows)
		}
		if err := s.insertTx(ctx, sql, rows[from:to]); err != nil {
			return written, errs.WrapMsg(err, "bulk insert", "table", table, "from", from, "to", to)
		}
		written += to - from
	}
	return written, nil
}

// insertTx 一个子批一个显式事务
func (s *SinkManager) insertTx(ctx context.Context, sql string, rows [][]any) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	b := &pgx.Batch{}
	for _, row := range rows {
		b.Queue(sql, row...)
	}
	br := tx.SendBatch(ctx, b)
	for range rows {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return err
		}
	}
	if err := br.Close(); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func buildInsertSQL(table string, columns []string) string {
	ph := make([]string, len(columns))
	for i := range columns {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT DO NOTHING",
		table, strings.Join(columns, ","), strings.Join(ph, ","))
}
