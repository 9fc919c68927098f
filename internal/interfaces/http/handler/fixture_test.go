package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	appChat "github.com/chatgroup/backend/internal/application/chat"
	"github.com/chatgroup/backend/internal/infrastructure/config"
	infraHistory "github.com/chatgroup/backend/internal/infrastructure/history"
	"github.com/chatgroup/backend/internal/infrastructure/storage"
	"github.com/chatgroup/backend/internal/infrastructure/tokenizer"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// envelope 统一响应结构，data 延迟解析
type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Detail  string          `json:"detail"`
}

// handlerFixture 基于真实 SQLite 与历史目录的处理器测试环境
type handlerFixture struct {
	router     *gin.Engine
	historyDir string
	exportDir  string
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()
	dir := t.TempDir()

	db, err := storage.OpenDB(filepath.Join(dir, "chatgroup.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	repo, err := storage.NewChatRepository(db)
	require.NoError(t, err)

	historyCfg := &config.HistoryConfig{
		Dir:       filepath.Join(dir, "chat_history"),
		MaxTokens: config.DefaultHistoryMaxTokens,
	}
	estimator := tokenizer.NewEstimator()
	store := infraHistory.NewFileStore(historyCfg.Dir, estimator)

	contexts := appChat.NewContextService(repo, nil)
	histories := appChat.NewHistoryService(contexts, repo, store, estimator, historyCfg, nil)
	exports := appChat.NewExportService(contexts, repo)
	sessions := appChat.NewSessionService(repo, histories)

	chatHandler := NewChatHandler(appChat.NewMessageService(repo), contexts)
	historyHandler := NewHistoryHandler(histories, exports)
	historyHandler.exportDir = filepath.Join(dir, "exports")
	sessionHandler := NewSessionHandler(sessions)

	router := gin.New()
	chat := router.Group("/api/v1/chat")
	{
		chat.POST("/agents", sessionHandler.RegisterAgent)
		chat.POST("/sessions", sessionHandler.CreateSession)
		chat.GET("/sessions/:session_id", sessionHandler.GetSession)
		chat.DELETE("/sessions/:session_id", sessionHandler.DeleteSession)
		chat.POST("/sessions/:session_id/archive", sessionHandler.ArchiveSession)
		chat.PUT("/sessions/:session_id/summary", sessionHandler.UpdateSummary)
		chat.POST("/sessions/:session_id/messages", chatHandler.CreateMessage)
		chat.GET("/sessions/:session_id/context", chatHandler.GetContext)
		chat.POST("/sessions/:session_id/history/snapshot", historyHandler.Snapshot)
		chat.GET("/sessions/:session_id/history", historyHandler.Read)
		chat.DELETE("/sessions/:session_id/history", historyHandler.Delete)
		chat.POST("/sessions/:session_id/export", historyHandler.Export)
	}

	return &handlerFixture{
		router:     router,
		historyDir: historyCfg.Dir,
		exportDir:  historyHandler.exportDir,
	}
}

// do 发送请求，body 非 nil 时编码为 JSON
func (f *handlerFixture) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	var resp envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), "响应应为 JSON: %s", w.Body.String())
	return w, resp
}

// createSession 创建会话并返回 ID
func (f *handlerFixture) createSession(t *testing.T, title string) string {
	t.Helper()
	w, resp := f.do(t, http.MethodPost, "/api/v1/chat/sessions", map[string]string{"title": title})
	require.Equal(t, http.StatusCreated, w.Code)

	var session SessionDTO
	require.NoError(t, json.Unmarshal(resp.Data, &session))
	return session.ID
}

// registerAgent 注册智能体并返回 ID
func (f *handlerFixture) registerAgent(t *testing.T, name string) string {
	t.Helper()
	w, resp := f.do(t, http.MethodPost, "/api/v1/chat/agents", map[string]string{"name": name})
	require.Equal(t, http.StatusCreated, w.Code)

	var agent AgentDTO
	require.NoError(t, json.Unmarshal(resp.Data, &agent))
	return agent.ID
}

// postMessage 发送消息
func (f *handlerFixture) postMessage(t *testing.T, sessionID string, body map[string]any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	return f.do(t, http.MethodPost, "/api/v1/chat/sessions/"+sessionID+"/messages", body)
}

func decodeData[T any](t *testing.T, resp envelope) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	return out
}
