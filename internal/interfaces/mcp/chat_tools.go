package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	domainChat "github.com/chatgroup/backend/internal/domain/chat"
	"github.com/chatgroup/backend/internal/domain/history"
)

// 上下文模式
const (
	contextModeFull      = "full"
	contextModeCompacted = "compacted"
)

// ChatContextInput 上下文工具输入
type ChatContextInput struct {
	SessionID string `json:"session_id" jsonschema:"Chat session ID (UUID)"`
	Mode      string `json:"mode,omitempty" jsonschema:"full or compacted, defaults to compacted"`
}

// ContextEntryOutput 上下文条目
type ContextEntryOutput struct {
	ID          string         `json:"id" jsonschema:"Message ID"`
	CreatedAt   string         `json:"created_at" jsonschema:"Creation time, RFC3339"`
	SenderType  string         `json:"sender_type" jsonschema:"user, agent or system"`
	SenderLabel string         `json:"sender_label" jsonschema:"Display label of the sender"`
	Content     string         `json:"content" jsonschema:"Message content, possibly compressed"`
	Mentions    []string       `json:"mentions" jsonschema:"Mentioned handles"`
	Meta        map[string]any `json:"meta" jsonschema:"Message metadata"`
	Compressed  *bool          `json:"compressed,omitempty" jsonschema:"Whether the content was compressed (compacted mode only)"`
}

// ChatContextOutput 上下文工具输出
type ChatContextOutput struct {
	SessionID string               `json:"session_id" jsonschema:"Chat session ID"`
	Mode      string               `json:"mode" jsonschema:"Effective mode"`
	Entries   []ContextEntryOutput `json:"entries" jsonschema:"Context entries in chronological order"`
	Total     int                  `json:"total" jsonschema:"Number of entries"`
}

// ChatHistoryInput 历史工具输入
type ChatHistoryInput struct {
	SessionID string `json:"session_id" jsonschema:"Chat session ID (UUID)"`
	Split     bool   `json:"split,omitempty" jsonschema:"Read the overflow file instead of the main file"`
}

// ChatHistoryOutput 历史工具输出
type ChatHistoryOutput struct {
	Found              bool                        `json:"found" jsonschema:"Whether the history file exists"`
	SessionID          string                      `json:"session_id" jsonschema:"Chat session ID"`
	Messages           []history.SimplifiedMessage `json:"messages" jsonschema:"Simplified messages"`
	TokenCount         uint32                      `json:"token_count" jsonschema:"Estimated token count"`
	CompressionApplied bool                        `json:"compression_applied" jsonschema:"Whether compression or eviction was applied"`
	SplitFile          *string                     `json:"split_file,omitempty" jsonschema:"Overflow file name if present"`
	UpdatedAt          string                      `json:"updated_at,omitempty" jsonschema:"Last write time, RFC3339"`
}

// getChatContextTool 获取会话上下文工具
func (s *MCPServer) getChatContextTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ChatContextInput,
) (*mcp.CallToolResult, ChatContextOutput, error) {
	if input.SessionID == "" {
		return nil, ChatContextOutput{}, fmt.Errorf("session_id 参数是必需的")
	}

	mode := input.Mode
	if mode == "" {
		mode = contextModeCompacted
	}

	var (
		entries []domainChat.ContextEntry
		err     error
	)
	switch mode {
	case contextModeFull:
		entries, err = s.contexts.BuildFullContext(ctx, input.SessionID)
	case contextModeCompacted:
		entries, err = s.contexts.BuildCompactedContext(ctx, input.SessionID)
	default:
		return nil, ChatContextOutput{}, fmt.Errorf("mode 只能为 full 或 compacted，实际为 %q", mode)
	}
	if err != nil {
		return nil, ChatContextOutput{}, fmt.Errorf("构建上下文失败: %w", err)
	}

	output := ChatContextOutput{
		SessionID: input.SessionID,
		Mode:      mode,
		Entries:   make([]ContextEntryOutput, 0, len(entries)),
		Total:     len(entries),
	}
	for _, entry := range entries {
		meta, err := metaToMap(entry.Meta)
		if err != nil {
			return nil, ChatContextOutput{}, err
		}
		output.Entries = append(output.Entries, ContextEntryOutput{
			ID:          entry.ID,
			CreatedAt:   entry.CreatedAt.UTC().Format(time.RFC3339),
			SenderType:  string(entry.Sender.Type),
			SenderLabel: entry.Sender.Label,
			Content:     entry.Content,
			Mentions:    entry.Mentions,
			Meta:        meta,
			Compressed:  entry.Compressed,
		})
	}

	return nil, output, nil
}

// getChatHistoryTool 读取会话历史文件工具
func (s *MCPServer) getChatHistoryTool(
	ctx context.Context,
	req *mcp.CallToolRequest,
	input ChatHistoryInput,
) (*mcp.CallToolResult, ChatHistoryOutput, error) {
	if input.SessionID == "" {
		return nil, ChatHistoryOutput{}, fmt.Errorf("session_id 参数是必需的")
	}

	var (
		file *history.File
		err  error
	)
	if input.Split {
		file, err = s.histories.ReadSplit(ctx, input.SessionID)
	} else {
		file, err = s.histories.Read(ctx, input.SessionID)
	}
	if err != nil {
		return nil, ChatHistoryOutput{}, fmt.Errorf("读取历史文件失败: %w", err)
	}

	if file == nil {
		return nil, ChatHistoryOutput{
			Found:     false,
			SessionID: input.SessionID,
			Messages:  []history.SimplifiedMessage{},
		}, nil
	}

	return nil, ChatHistoryOutput{
		Found:              true,
		SessionID:          file.SessionID,
		Messages:           file.Messages,
		TokenCount:         file.Metadata.TokenCount,
		CompressionApplied: file.Metadata.CompressionApplied,
		SplitFile:          file.Metadata.SplitFile,
		UpdatedAt:          file.UpdatedAt.UTC().Format(time.RFC3339),
	}, nil
}

// metaToMap 元数据转为通用对象，保留未知键
func metaToMap(meta domainChat.Metadata) (map[string]any, error) {
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("编码元数据失败: %w", err)
	}
	out := make(map[string]any)
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("解码元数据失败: %w", err)
	}
	return out, nil
}
