package chat

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	domainChat "github.com/chatgroup/backend/internal/domain/chat"
	"github.com/chatgroup/backend/internal/domain/history"
)

// fakeRepo 内存版 AdminRepository
type fakeRepo struct {
	mu       sync.Mutex
	sessions map[string]*domainChat.Session
	agents   map[string]*domainChat.Agent
	messages map[string][]*domainChat.Message
	clock    time.Time
	touched  map[string]int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		sessions: make(map[string]*domainChat.Session),
		agents:   make(map[string]*domainChat.Agent),
		messages: make(map[string][]*domainChat.Message),
		clock:    time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC),
		touched:  make(map[string]int),
	}
}

// tick 每次调用前进一秒，保证消息时间严格递增
func (r *fakeRepo) tick() time.Time {
	r.clock = r.clock.Add(time.Second)
	return r.clock
}

func (r *fakeRepo) FindMessagesBySession(ctx context.Context, sessionID string) ([]*domainChat.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domainChat.Message, 0, len(r.messages[sessionID]))
	for _, msg := range r.messages[sessionID] {
		clone := *msg
		clone.Meta = msg.Meta.Clone()
		out = append(out, &clone)
	}
	return out, nil
}

func (r *fakeRepo) FindAllAgents(ctx context.Context) ([]*domainChat.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domainChat.Agent, 0, len(r.agents))
	for _, agent := range r.agents {
		clone := *agent
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *fakeRepo) FindAgentByID(ctx context.Context, id string) (*domainChat.Agent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	agent, ok := r.agents[id]
	if !ok {
		return nil, nil
	}
	clone := *agent
	return &clone, nil
}

func (r *fakeRepo) FindSessionByID(ctx context.Context, id string) (*domainChat.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return nil, nil
	}
	clone := *session
	return &clone, nil
}

func (r *fakeRepo) TouchSession(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", domainChat.ErrSessionNotFound, id)
	}
	session.UpdatedAt = r.tick()
	r.touched[id]++
	return nil
}

func (r *fakeRepo) CreateMessage(ctx context.Context, draft *domainChat.MessageDraft, id string) (*domainChat.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, list := range r.messages {
		for _, existing := range list {
			if existing.ID == id {
				return nil, fmt.Errorf("%w: duplicate message id %s", domainChat.ErrStorage, id)
			}
		}
	}

	msg := &domainChat.Message{
		ID:         id,
		SessionID:  draft.SessionID,
		SenderType: draft.SenderType,
		SenderID:   draft.SenderID,
		Content:    draft.Content,
		Mentions:   append([]string(nil), draft.Mentions...),
		Meta:       draft.Meta.Clone(),
		CreatedAt:  r.tick(),
	}
	r.messages[draft.SessionID] = append(r.messages[draft.SessionID], msg)

	clone := *msg
	clone.Meta = msg.Meta.Clone()
	return &clone, nil
}

func (r *fakeRepo) SaveSession(ctx context.Context, session *domainChat.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if session.ID == "" {
		session.ID = uuid.New().String()
	}
	now := r.tick()
	if existing, ok := r.sessions[session.ID]; ok {
		session.CreatedAt = existing.CreatedAt
	} else {
		session.CreatedAt = now
	}
	session.UpdatedAt = now

	clone := *session
	r.sessions[session.ID] = &clone
	return nil
}

func (r *fakeRepo) UpdateSessionStatus(ctx context.Context, id string, status domainChat.SessionStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	session, ok := r.sessions[id]
	if !ok {
		return fmt.Errorf("%w: %s", domainChat.ErrSessionNotFound, id)
	}
	session.Status = status
	session.UpdatedAt = r.tick()
	return nil
}

func (r *fakeRepo) SaveAgent(ctx context.Context, agent *domainChat.Agent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if agent.ID == "" {
		agent.ID = uuid.New().String()
	}
	if agent.CreatedAt.IsZero() {
		agent.CreatedAt = r.tick()
	}
	clone := *agent
	r.agents[agent.ID] = &clone
	return nil
}

func (r *fakeRepo) DeleteSession(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[id]; !ok {
		return fmt.Errorf("%w: %s", domainChat.ErrSessionNotFound, id)
	}
	delete(r.sessions, id)
	delete(r.messages, id)
	return nil
}

func (r *fakeRepo) messageCount(sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.messages[sessionID])
}

// addSession 直接插入会话
func (r *fakeRepo) addSession(t *testing.T, status domainChat.SessionStatus) string {
	t.Helper()
	session := &domainChat.Session{Title: "test session", Status: status}
	require.NoError(t, r.SaveSession(context.Background(), session))
	return session.ID
}

// addAgent 直接插入智能体
func (r *fakeRepo) addAgent(t *testing.T, name string) string {
	t.Helper()
	agent := &domainChat.Agent{Name: name}
	require.NoError(t, r.SaveAgent(context.Background(), agent))
	return agent.ID
}

var _ domainChat.AdminRepository = (*fakeRepo)(nil)

// MockRepository 模拟 Repository，用于断言调用次数或注入错误
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) FindMessagesBySession(ctx context.Context, sessionID string) ([]*domainChat.Message, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domainChat.Message), args.Error(1)
}

func (m *MockRepository) FindAllAgents(ctx context.Context) ([]*domainChat.Agent, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domainChat.Agent), args.Error(1)
}

func (m *MockRepository) FindAgentByID(ctx context.Context, id string) (*domainChat.Agent, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domainChat.Agent), args.Error(1)
}

func (m *MockRepository) FindSessionByID(ctx context.Context, id string) (*domainChat.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domainChat.Session), args.Error(1)
}

func (m *MockRepository) TouchSession(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRepository) CreateMessage(ctx context.Context, draft *domainChat.MessageDraft, id string) (*domainChat.Message, error) {
	args := m.Called(ctx, draft, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domainChat.Message), args.Error(1)
}

var _ domainChat.Repository = (*MockRepository)(nil)

// countingEstimator 每条消息固定计 10 个 token
type countingEstimator struct{}

func (countingEstimator) EstimateMessages(messages []history.SimplifiedMessage) int {
	return 10 * len(messages)
}

func strPtr(s string) *string { return &s }
