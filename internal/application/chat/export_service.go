package chat

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	domainChat "github.com/chatgroup/backend/internal/domain/chat"
	"github.com/chatgroup/backend/internal/domain/history"
	"github.com/chatgroup/backend/internal/infrastructure/log"
)

// 导出文件名
const (
	ExportMessagesFile = "messages_export.jsonl"
	ExportSummaryFile  = "session_summary.md"
	noSummaryText      = "No summary available."
)

// ExportService 会话归档导出
type ExportService struct {
	contexts *ContextService
	repo     domainChat.Repository
	logger   *slog.Logger
}

// NewExportService 创建导出服务
func NewExportService(contexts *ContextService, repo domainChat.Repository) *ExportService {
	return &ExportService{
		contexts: contexts,
		repo:     repo,
		logger:   log.NewModuleLogger("chat", "export_service"),
	}
}

// ExportSessionArchive 把会话完整上下文导出为 JSONL，并写出会话摘要
// 返回归档目录
func (s *ExportService) ExportSessionArchive(ctx context.Context, sessionID, dir string) (string, error) {
	session, err := s.repo.FindSessionByID(ctx, sessionID)
	if err != nil {
		return "", fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return "", fmt.Errorf("%w: %s", domainChat.ErrSessionNotFound, sessionID)
	}

	entries, err := s.contexts.BuildFullContext(ctx, sessionID)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("%w: create archive dir: %w", history.ErrFilesystem, err)
	}
	if err := writeJSONLines(filepath.Join(dir, ExportMessagesFile), entries); err != nil {
		return "", err
	}

	summary := noSummaryText
	if session.SummaryText != nil {
		summary = *session.SummaryText
	}
	if err := os.WriteFile(filepath.Join(dir, ExportSummaryFile), []byte(summary), 0o644); err != nil {
		return "", fmt.Errorf("%w: write summary: %w", history.ErrFilesystem, err)
	}

	log.FromContext(ctx, s.logger).Info("session archive exported",
		"session_id", sessionID,
		"messages", len(entries),
		"dir", dir,
	)
	return dir, nil
}

func writeJSONLines(path string, entries []domainChat.ContextEntry) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create export file: %w", history.ErrFilesystem, err)
	}
	defer file.Close()

	w := bufio.NewWriter(file)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	for _, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			return fmt.Errorf("%w: write export line: %w", history.ErrFilesystem, err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("%w: flush export file: %w", history.ErrFilesystem, err)
	}
	return file.Close()
}
