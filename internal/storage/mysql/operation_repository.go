package mysql

import (
	"bufio"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// OperationRecord 表示一次路由请求的审计落库结构。
type OperationRecord struct {
	SessionID  string
	Request    string
	Operation  string
	ObjectType string
	Mode       string
	Status     string
	Result     string
	CreatedAt  int64
}

// OperationRepository 抽象操作审计数据的持久化接口。
type OperationRepository interface {
	Save(ctx context.Context, record OperationRecord) error
	ListLatest(ctx context.Context, limit int) ([]OperationRecord, error)
}

// MemoryOperationRepository 使用本地 JSON 行文件模拟 MySQL 的效果，方便迭代开发。
type MemoryOperationRepository struct {
	mu       sync.RWMutex
	dataFile string
	records  []OperationRecord
}

var _ OperationRepository = (*MemoryOperationRepository)(nil)

// NewMemoryOperationRepository 创建一个内存审计仓库。
func NewMemoryOperationRepository(dataDir string) (*MemoryOperationRepository, error) {
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}
	path := filepath.Join(dataDir, "operations.log")
	repo := &MemoryOperationRepository{dataFile: path}
	if err := repo.loadFromDisk(); err != nil {
		return nil, err
	}
	return repo, nil
}

// Save 以追加写的方式记录操作结果。
func (m *MemoryOperationRepository) Save(_ context.Context, record OperationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	file, err := os.OpenFile(m.dataFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("打开审计日志失败: %w", err)
	}
	defer file.Close()

	encoded, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("序列化审计记录失败: %w", err)
	}

	if _, err := file.Write(append(encoded, '\n')); err != nil {
		return fmt.Errorf("写入审计日志失败: %w", err)
	}

	m.records = append([]OperationRecord{record}, m.records...)
	if len(m.records) > 512 {
		m.records = m.records[:512]
	}
	return nil
}

// ListLatest 返回最近的审计记录，按时间倒序排列。
func (m *MemoryOperationRepository) ListLatest(_ context.Context, limit int) ([]OperationRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.records) {
		limit = len(m.records)
	}

	results := make([]OperationRecord, limit)
	copy(results, m.records[:limit])
	return results, nil
}

func (m *MemoryOperationRepository) loadFromDisk() error {
	file, err := os.OpenFile(m.dataFile, os.O_RDONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("读取审计日志失败: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	var restored []OperationRecord
	for scanner.Scan() {
		var record OperationRecord
		if err := json.Unmarshal(scanner.Bytes(), &record); err != nil {
			continue
		}
		restored = append([]OperationRecord{record}, restored...)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("解析审计日志失败: %w", err)
	}

	if len(restored) > 512 {
		restored = restored[:512]
	}
	if len(restored) > 0 {
		m.records = restored
	}
	return nil
}

// SQLOperationRepository 使用真实的 MySQL 数据库存储审计信息。
type SQLOperationRepository struct {
	db *sql.DB
}

var _ OperationRepository = (*SQLOperationRepository)(nil)

// NewSQLOperationRepository 创建连接池并初始化数据表。
func NewSQLOperationRepository(dsn string) (*SQLOperationRepository, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 失败: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("无法连接到 MySQL: %w", err)
	}

	repo := &SQLOperationRepository{db: db}
	if err := repo.initSchema(); err != nil {
		return nil, err
	}
	return repo, nil
}

func (s *SQLOperationRepository) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS operations (
        id BIGINT AUTO_INCREMENT PRIMARY KEY,
        session_id VARCHAR(64) NOT NULL,
        request TEXT NOT NULL,
        operation VARCHAR(32) DEFAULT '',
        object_type VARCHAR(64) DEFAULT '',
        mode VARCHAR(16) NOT NULL,
        status VARCHAR(16) NOT NULL,
        result TEXT NOT NULL,
        created_at BIGINT NOT NULL,
        INDEX idx_session_id (session_id),
        INDEX idx_created_at (created_at)
)`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("初始化 operations 表失败: %w", err)
	}
	return nil
}

// Save 将审计记录写入 MySQL。
func (s *SQLOperationRepository) Save(ctx context.Context, record OperationRecord) error {
	const stmt = `INSERT INTO operations
        (session_id, request, operation, object_type, mode, status, result, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	if _, err := s.db.ExecContext(ctx, stmt,
		record.SessionID,
		record.Request,
		record.Operation,
		record.ObjectType,
		record.Mode,
		record.Status,
		record.Result,
		record.CreatedAt,
	); err != nil {
		return fmt.Errorf("写入 MySQL 失败: %w", err)
	}
	return nil
}

// ListLatest 查询最近的若干条审计记录。
func (s *SQLOperationRepository) ListLatest(ctx context.Context, limit int) ([]OperationRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.QueryContext(ctx, `SELECT session_id, request, operation, object_type, mode, status, result, created_at
        FROM operations ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("查询审计记录失败: %w", err)
	}
	defer rows.Close()

	var records []OperationRecord
	for rows.Next() {
		var record OperationRecord
		if err := rows.Scan(&record.SessionID, &record.Request, &record.Operation, &record.ObjectType, &record.Mode, &record.Status, &record.Result, &record.CreatedAt); err != nil {
			return nil, fmt.Errorf("解析审计记录失败: %w", err)
		}
		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("遍历审计记录失败: %w", err)
	}

	return records, nil
}

// Close 关闭底层数据库连接。
func (s *SQLOperationRepository) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
