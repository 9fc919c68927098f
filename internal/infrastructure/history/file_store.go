// Package history 会话历史文件的磁盘存储
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chatgroup/backend/internal/domain/chat"
	domainHistory "github.com/chatgroup/backend/internal/domain/history"
	"github.com/chatgroup/backend/internal/infrastructure/log"
)

// tempSuffix 临时文件后缀，文件监听会忽略此类文件
const tempSuffix = ".tmp"

// FileStore 历史文件存储
// 主文件 {dir}/{session}.json，溢出文件 {dir}/{session}_split.json。
// 同一会话的并发调用需要由调用方串行化。
type FileStore struct {
	dir       string
	estimator domainHistory.TokenEstimator
	now       func() time.Time
	logger    *slog.Logger
}

// NewFileStore 创建历史文件存储
func NewFileStore(dir string, estimator domainHistory.TokenEstimator) *FileStore {
	return &FileStore{
		dir:       dir,
		estimator: estimator,
		now:       time.Now,
		logger:    log.NewModuleLogger("history", "file_store"),
	}
}

// Dir 返回存储目录
func (s *FileStore) Dir() string {
	return s.dir
}

// Write 写入主历史文件，覆盖已有内容
// created_at 沿用已存在且可读的主文件，updated_at 为当前时间
func (s *FileStore) Write(ctx context.Context, sessionID string, messages []domainHistory.SimplifiedMessage, compressionApplied bool, splitFile *string) (*domainHistory.File, error) {
	path, err := s.mainPath(sessionID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.timestamp()
	createdAt := now
	existing, err := s.readFile(path)
	switch {
	case err != nil:
		log.FromContext(ctx, s.logger).Warn("overwriting unreadable history file",
			"session_id", sessionID,
			"error", err,
		)
	case existing != nil:
		createdAt = existing.CreatedAt
	}

	file := s.newFile(sessionID, messages, createdAt, now)
	file.Metadata.CompressionApplied = compressionApplied
	if splitFile != nil {
		name := *splitFile
		file.Metadata.SplitFile = &name
	}

	if err := s.writeFile(path, file); err != nil {
		return nil, err
	}

	s.logger.Debug("history file written",
		"session_id", sessionID,
		"messages", len(file.Messages),
		"token_count", file.Metadata.TokenCount,
		"compression_applied", compressionApplied,
	)
	return file, nil
}

// Read 读取主历史文件，文件不存在时返回 nil, nil
func (s *FileStore) Read(ctx context.Context, sessionID string) (*domainHistory.File, error) {
	path, err := s.mainPath(sessionID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.readFile(path)
}

// ReadSplit 读取溢出文件，文件不存在时返回 nil, nil
func (s *FileStore) ReadSplit(ctx context.Context, sessionID string) (*domainHistory.File, error) {
	path, err := s.splitPath(sessionID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.readFile(path)
}

// CreateSplit 写入全新的溢出文件
func (s *FileStore) CreateSplit(ctx context.Context, sessionID string, messages []domainHistory.SimplifiedMessage) (*domainHistory.File, error) {
	path, err := s.splitPath(sessionID)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := s.timestamp()
	file := s.newFile(sessionID, messages, now, now)
	if err := s.writeFile(path, file); err != nil {
		return nil, err
	}
	return file, nil
}

// AppendToSplit 把消息追加到溢出文件末尾，保留已有的归档位置
// 读取-修改-写入，不是真正的追加
func (s *FileStore) AppendToSplit(ctx context.Context, sessionID string, newMessages []domainHistory.SimplifiedMessage) (*domainHistory.File, error) {
	return s.appendSplit(ctx, sessionID, newMessages, nil)
}

// AppendEvicted 追加从主文件移出的消息，并记录归档到的消息 ID
func (s *FileStore) AppendEvicted(ctx context.Context, sessionID string, evicted []domainHistory.SimplifiedMessage, throughID string) (*domainHistory.File, error) {
	return s.appendSplit(ctx, sessionID, evicted, &throughID)
}

func (s *FileStore) appendSplit(ctx context.Context, sessionID string, newMessages []domainHistory.SimplifiedMessage, throughID *string) (*domainHistory.File, error) {
	path, err := s.splitPath(sessionID)
	if err != nil {
		return nil, err
	}
	existing, err := s.ReadSplit(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	now := s.timestamp()
	createdAt := now
	var messages []domainHistory.SimplifiedMessage
	if existing != nil {
		createdAt = existing.CreatedAt
		messages = append(messages, existing.Messages...)
		if throughID == nil {
			throughID = existing.Metadata.EvictedThrough
		}
	}
	messages = append(messages, newMessages...)

	file := s.newFile(sessionID, messages, createdAt, now)
	if throughID != nil {
		id := *throughID
		file.Metadata.EvictedThrough = &id
	}
	if err := s.writeFile(path, file); err != nil {
		return nil, err
	}
	return file, nil
}

// Delete 删除主文件和溢出文件，文件不存在不视为错误
func (s *FileStore) Delete(ctx context.Context, sessionID string) error {
	mainPath, err := s.mainPath(sessionID)
	if err != nil {
		return err
	}
	splitPath, err := s.splitPath(sessionID)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for _, path := range []string{mainPath, splitPath} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: remove %s: %w", domainHistory.ErrFilesystem, filepath.Base(path), err)
		}
	}
	return nil
}

// SessionIDFromPath 从历史文件路径解析会话 ID 和是否为溢出文件
func SessionIDFromPath(path string) (sessionID string, split bool, ok bool) {
	name := filepath.Base(path)
	if !strings.HasSuffix(name, ".json") {
		return "", false, false
	}
	stem := strings.TrimSuffix(name, ".json")
	if trimmed, found := strings.CutSuffix(stem, "_split"); found {
		stem = trimmed
		split = true
	}
	if validateSessionID(stem) != nil {
		return "", false, false
	}
	return stem, split, true
}

func (s *FileStore) newFile(sessionID string, messages []domainHistory.SimplifiedMessage, createdAt, updatedAt time.Time) *domainHistory.File {
	if messages == nil {
		messages = []domainHistory.SimplifiedMessage{}
	}
	tokens := 0
	if s.estimator != nil {
		tokens = s.estimator.EstimateMessages(messages)
	}
	return &domainHistory.File{
		SessionID: sessionID,
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
		Messages:  messages,
		Metadata: domainHistory.Metadata{
			TokenCount: uint32(tokens),
		},
	}
}

// timestamp 当前时间，精确到秒的 UTC
func (s *FileStore) timestamp() time.Time {
	return s.now().UTC().Truncate(time.Second)
}

func (s *FileStore) mainPath(sessionID string) (string, error) {
	if err := validateSessionID(sessionID); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, domainHistory.MainFileName(sessionID)), nil
}

func (s *FileStore) splitPath(sessionID string) (string, error) {
	if err := validateSessionID(sessionID); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, domainHistory.SplitFileName(sessionID)), nil
}

// validateSessionID 会话 ID 必须是标准格式的 UUID，防止路径穿越
func validateSessionID(sessionID string) error {
	if _, err := uuid.Parse(sessionID); err != nil || len(sessionID) != 36 {
		return fmt.Errorf("%w: %w: %q", chat.ErrValidation, domainHistory.ErrInvalidSessionID, sessionID)
	}
	return nil
}

func (s *FileStore) readFile(path string) (*domainHistory.File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: read %s: %w", domainHistory.ErrFilesystem, filepath.Base(path), err)
	}

	var file domainHistory.File
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domainHistory.ErrMalformedFile, filepath.Base(path), err)
	}
	if file.Messages == nil {
		file.Messages = []domainHistory.SimplifiedMessage{}
	}
	return &file, nil
}

// writeFile 原子写入：同目录临时文件 -> fsync -> close -> rename
func (s *FileStore) writeFile(path string, file *domainHistory.File) error {
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", domainHistory.ErrMalformedFile, filepath.Base(path), err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("%w: create history dir: %w", domainHistory.ErrFilesystem, err)
	}

	tmp, err := os.CreateTemp(s.dir, filepath.Base(path)+".*"+tempSuffix)
	if err != nil {
		return fmt.Errorf("%w: create temp file: %w", domainHistory.ErrFilesystem, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: write temp file: %w", domainHistory.ErrFilesystem, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: sync temp file: %w", domainHistory.ErrFilesystem, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: close temp file: %w", domainHistory.ErrFilesystem, err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: chmod temp file: %w", domainHistory.ErrFilesystem, err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: rename %s: %w", domainHistory.ErrFilesystem, filepath.Base(path), err)
	}
	return nil
}

// IsTempFile 是否为写入过程中的临时文件
func IsTempFile(path string) bool {
	return strings.HasSuffix(path, tempSuffix)
}

var _ domainHistory.Store = (*FileStore)(nil)
