//go:build integration
// +build integration

// APIClient 基于 resty 封装的 HTTP 客户端，直接复用业务结构体
package framework

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	domainChat "github.com/chatgroup/backend/internal/domain/chat"
	domainHistory "github.com/chatgroup/backend/internal/domain/history"
	"github.com/chatgroup/backend/internal/interfaces/http/handler"
)

// APIClient 测试用 HTTP 客户端
type APIClient struct {
	client  *resty.Client
	baseURL string
}

// NewAPIClient 创建测试用 HTTP 客户端
func NewAPIClient(baseURL string) *APIClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(10*time.Second).
		SetHeader("Content-Type", "application/json")

	return &APIClient{
		client:  client,
		baseURL: baseURL,
	}
}

// APIResponse 通用 API 响应（复用 response.Response 的 JSON 结构）
type APIResponse[T any] struct {
	StatusCode int    `json:"-"`
	Code       int    `json:"code"`
	Message    string `json:"message"`
	Data       T      `json:"data,omitempty"`
}

// HealthData /health 响应
type HealthData struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// send 执行请求并统一处理成功/错误响应的 JSON 解析
// resty 的 SetResult 仅在 2xx 时解析，SetError 在 4xx/5xx 时解析
// 由于两者的 code/message 字段一致，用同类型接收即可
func send[T any](r *resty.Request, method, url string) (*APIResponse[T], error) {
	var result APIResponse[T]
	resp, err := r.SetResult(&result).SetError(&result).Execute(method, url)
	if err != nil {
		return nil, err
	}
	result.StatusCode = resp.StatusCode()
	return &result, nil
}

// --- 健康检查 ---

// HealthCheck 健康检查
func (c *APIClient) HealthCheck() (*HealthData, error) {
	var health HealthData
	resp, err := c.client.R().SetResult(&health).Get("/health")
	if err != nil {
		return nil, err
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("health check failed: status %d", resp.StatusCode())
	}
	return &health, nil
}

// --- 会话与智能体 ---

// RegisterAgent 注册智能体
func (c *APIClient) RegisterAgent(name string) (*APIResponse[handler.AgentDTO], error) {
	return send[handler.AgentDTO](c.client.R().SetBody(map[string]string{"name": name}),
		resty.MethodPost, "/api/v1/chat/agents")
}

// CreateSession 创建会话
func (c *APIClient) CreateSession(title string) (*APIResponse[handler.SessionDTO], error) {
	return send[handler.SessionDTO](c.client.R().SetBody(map[string]string{"title": title}),
		resty.MethodPost, "/api/v1/chat/sessions")
}

// GetSession 获取会话
func (c *APIClient) GetSession(sessionID string) (*APIResponse[handler.SessionDTO], error) {
	return send[handler.SessionDTO](c.client.R(), resty.MethodGet, "/api/v1/chat/sessions/"+sessionID)
}

// ArchiveSession 归档会话
func (c *APIClient) ArchiveSession(sessionID string) (*APIResponse[json.RawMessage], error) {
	return send[json.RawMessage](c.client.R(), resty.MethodPost,
		fmt.Sprintf("/api/v1/chat/sessions/%s/archive", sessionID))
}

// DeleteSession 删除会话
func (c *APIClient) DeleteSession(sessionID string) (*APIResponse[json.RawMessage], error) {
	return send[json.RawMessage](c.client.R(), resty.MethodDelete, "/api/v1/chat/sessions/"+sessionID)
}

// --- 消息与上下文 ---

// PostMessage 发送消息，meta 为空时不携带
func (c *APIClient) PostMessage(sessionID, senderType string, senderID *string, content string, meta json.RawMessage) (*APIResponse[handler.MessageDTO], error) {
	body := map[string]any{
		"sender_type": senderType,
		"content":     content,
	}
	if senderID != nil {
		body["sender_id"] = *senderID
	}
	if meta != nil {
		body["meta"] = meta
	}
	return send[handler.MessageDTO](c.client.R().SetBody(body), resty.MethodPost,
		fmt.Sprintf("/api/v1/chat/sessions/%s/messages", sessionID))
}

// GetContext 获取上下文，mode 为 full 或 compacted
func (c *APIClient) GetContext(sessionID, mode string) (*APIResponse[[]domainChat.ContextEntry], error) {
	return send[[]domainChat.ContextEntry](c.client.R().SetQueryParam("mode", mode), resty.MethodGet,
		fmt.Sprintf("/api/v1/chat/sessions/%s/context", sessionID))
}

// --- 历史文件 ---

// Snapshot 生成历史快照
func (c *APIClient) Snapshot(sessionID string) (*APIResponse[domainHistory.File], error) {
	return send[domainHistory.File](c.client.R(), resty.MethodPost,
		fmt.Sprintf("/api/v1/chat/sessions/%s/history/snapshot", sessionID))
}

// ReadHistory 读取历史文件，split 为 true 时读取溢出文件
func (c *APIClient) ReadHistory(sessionID string, split bool) (*APIResponse[domainHistory.File], error) {
	return send[domainHistory.File](c.client.R().SetQueryParam("split", fmt.Sprint(split)), resty.MethodGet,
		fmt.Sprintf("/api/v1/chat/sessions/%s/history", sessionID))
}

// Export 导出会话归档，dir 为空时使用默认目录
func (c *APIClient) Export(sessionID, dir string) (*APIResponse[handler.ExportDTO], error) {
	req := c.client.R()
	if dir != "" {
		req = req.SetBody(map[string]string{"dir": dir})
	}
	return send[handler.ExportDTO](req, resty.MethodPost,
		fmt.Sprintf("/api/v1/chat/sessions/%s/export", sessionID))
}

// --- 辅助方法 ---

// MustCreateSessionWithAgent 注册智能体并创建会话的快捷方法（测试辅助）
func (c *APIClient) MustCreateSessionWithAgent(agentName, title string) (agentID, sessionID string, err error) {
	agentResp, err := c.RegisterAgent(agentName)
	if err != nil {
		return "", "", fmt.Errorf("register agent: %w", err)
	}
	if agentResp.Code != 0 {
		return "", "", fmt.Errorf("register agent failed: %s", agentResp.Message)
	}

	sessionResp, err := c.CreateSession(title)
	if err != nil {
		return "", "", fmt.Errorf("create session: %w", err)
	}
	if sessionResp.Code != 0 {
		return "", "", fmt.Errorf("create session failed: %s", sessionResp.Message)
	}

	return agentResp.Data.ID, sessionResp.Data.ID, nil
}
