package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"pai-docqa-go/internal/model"
	"strings"
	"time"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	doc_id        TEXT NOT NULL UNIQUE,
	original_file TEXT NOT NULL,
	file_type     TEXT NOT NULL,
	object_key    TEXT NOT NULL,
	status        TEXT NOT NULL,
	ocr_used      INTEGER NOT NULL DEFAULT 0,
	chunks_count  INTEGER NOT NULL DEFAULT 0,
	error_message TEXT NOT NULL DEFAULT '',
	created_at    TEXT NOT NULL,
	processed_at  TEXT
);
CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
`

const documentColumns = `doc_id, original_file, file_type, object_key, status, ocr_used, chunks_count, error_message, created_at, processed_at`

// sqliteDocumentRepository 是基于嵌入式 SQLite 的 DocumentRepository 实现。
type sqliteDocumentRepository struct {
	db *sql.DB
}

// NewSQLiteDocumentRepository 创建仓库并建表。
func NewSQLiteDocumentRepository(ctx context.Context, db *sql.DB) (DocumentRepository, error) {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return nil, fmt.Errorf("初始化 documents 表失败: %w", err)
	}
	return &sqliteDocumentRepository{db: db}, nil
}

func (r *sqliteDocumentRepository) Create(ctx context.Context, doc *model.Document) error {
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now()
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO documents (`+documentColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.DocID, doc.OriginalFile, doc.FileType, doc.ObjectKey, string(doc.Status),
		doc.OCRUsed, doc.ChunksCount, doc.ErrorMessage, formatTime(&doc.CreatedAt), nullTime(doc.ProcessedAt),
	)
	if err != nil {
		return fmt.Errorf("插入文档 %s 失败: %w", doc.DocID, err)
	}
	if id, err := res.LastInsertId(); err == nil {
		doc.ID = uint(id)
	}
	return nil
}

func (r *sqliteDocumentRepository) FindByDocID(ctx context.Context, docID string) (*model.Document, error) {
	row := r.db.QueryRowContext(ctx, `SELECT id, `+documentColumns+` FROM documents WHERE doc_id = ?`, docID)
	doc, err := scanDocument(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("文档 %s: %w", docID, model.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *sqliteDocumentRepository) FindByDocIDs(ctx context.Context, docIDs []string) ([]model.Document, error) {
	if len(docIDs) == 0 {
		return nil, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(docIDs)), ",")
	args := make([]interface{}, len(docIDs))
	for i, id := range docIDs {
		args[i] = id
	}
	return r.query(ctx, `SELECT id, `+documentColumns+` FROM documents WHERE doc_id IN (`+placeholders+`) ORDER BY id ASC`, args...)
}

func (r *sqliteDocumentRepository) FindAll(ctx context.Context) ([]model.Document, error) {
	return r.query(ctx, `SELECT id, `+documentColumns+` FROM documents ORDER BY id ASC`)
}

func (r *sqliteDocumentRepository) Transition(ctx context.Context, docID string, from, to model.DocumentStatus, upd model.StatusUpdate) error {
	if !model.CanTransition(from, to) {
		return fmt.Errorf("%s -> %s: %w", from, to, model.ErrInvalidTransition)
	}
	var (
		res sql.Result
		err error
	)
	if to.IsTerminal() {
		res, err = r.db.ExecContext(ctx,
			`UPDATE documents SET status = ?, error_message = ?, chunks_count = ?, ocr_used = ?, processed_at = ?
			 WHERE doc_id = ? AND status = ?`,
			string(to), upd.ErrorMessage, upd.ChunksCount, upd.OCRUsed, nullTime(upd.ProcessedAt), docID, string(from))
	} else {
		res, err = r.db.ExecContext(ctx,
			`UPDATE documents SET status = ? WHERE doc_id = ? AND status = ?`, string(to), docID, string(from))
	}
	if err != nil {
		return fmt.Errorf("更新文档 %s 状态失败: %w", docID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("文档 %s 当前不处于 %s 状态: %w", docID, from, model.ErrInvalidTransition)
	}
	return nil
}

func (r *sqliteDocumentRepository) query(ctx context.Context, q string, args ...interface{}) ([]model.Document, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("查询文档失败: %w", err)
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var (
		doc         model.Document
		id          int64
		status      string
		createdAt   string
		processedAt sql.NullString
	)
	err := row.Scan(&id, &doc.DocID, &doc.OriginalFile, &doc.FileType, &doc.ObjectKey, &status,
		&doc.OCRUsed, &doc.ChunksCount, &doc.ErrorMessage, &createdAt, &processedAt)
	if err != nil {
		return nil, err
	}
	doc.ID = uint(id)
	doc.Status = model.DocumentStatus(status)
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		doc.CreatedAt = t
	}
	if processedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, processedAt.String); err == nil {
			doc.ProcessedAt = &t
		}
	}
	return &doc, nil
}

func formatTime(t *time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(t), Valid: true}
}
