package chat

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	domainChat "github.com/chatgroup/backend/internal/domain/chat"
)

func TestMessageService_CreateMessage(t *testing.T) {
	repo := newFakeRepo()
	sessionID := repo.addSession(t, domainChat.SessionActive)
	plannerID := repo.addAgent(t, "planner")

	svc := NewMessageService(repo)
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 16, 30, 0, 0, time.FixedZone("CST", 8*3600)) }

	msg, err := svc.CreateMessage(context.Background(), CreateMessageInput{
		SessionID:  sessionID,
		SenderType: domainChat.SenderAgent,
		SenderID:   &plannerID,
		Content:    "ping @reviewer and @planner, cc test@example.com",
	})
	require.NoError(t, err)

	_, err = uuid.Parse(msg.ID)
	assert.NoError(t, err)
	assert.Equal(t, []string{"reviewer", "planner"}, msg.Mentions)

	require.NotNil(t, msg.Meta.Sender)
	assert.Equal(t, "planner", msg.Meta.Sender.Label)
	require.NotNil(t, msg.Meta.Sender.Name)
	assert.Equal(t, "planner", *msg.Meta.Sender.Name)

	require.NotNil(t, msg.Meta.Structured)
	assert.Equal(t, domainChat.SenderAgent, msg.Meta.Structured.SenderType)
	assert.Equal(t, msg.Content, msg.Meta.Structured.Content)
	assert.Equal(t, msg.Mentions, msg.Meta.Structured.Mentions)
	assert.Equal(t, "2025-03-01T08:30:00Z", msg.Meta.Structured.CreatedAt)

	assert.Equal(t, 1, repo.messageCount(sessionID))
	assert.Equal(t, 1, repo.touched[sessionID])
}

func TestMessageService_UserHandleLabel(t *testing.T) {
	repo := newFakeRepo()
	sessionID := repo.addSession(t, domainChat.SessionActive)

	svc := NewMessageService(repo)
	msg, err := svc.CreateMessage(context.Background(), CreateMessageInput{
		SessionID:  sessionID,
		SenderType: domainChat.SenderUser,
		Content:    "hello",
		Meta:       json.RawMessage(`{"sender_handle":"alice"}`),
	})
	require.NoError(t, err)

	require.NotNil(t, msg.Meta.Sender)
	assert.Equal(t, "alice", msg.Meta.Sender.Label)
	require.NotNil(t, msg.Meta.Structured.SenderHandle)
	assert.Equal(t, "alice", *msg.Meta.Structured.SenderHandle)
}

func TestMessageService_CallerSenderKept(t *testing.T) {
	repo := newFakeRepo()
	sessionID := repo.addSession(t, domainChat.SessionActive)

	svc := NewMessageService(repo)
	msg, err := svc.CreateMessage(context.Background(), CreateMessageInput{
		SessionID:  sessionID,
		SenderType: domainChat.SenderUser,
		Content:    "hello",
		Meta:       json.RawMessage(`{"sender":{"label":"custom"}}`),
	})
	require.NoError(t, err)

	raw, ok := msg.Meta.Get(domainChat.MetaKeySender)
	require.True(t, ok)
	assert.JSONEq(t, `{"label":"custom"}`, string(raw))
}

func TestMessageService_StructuredAlwaysOverwritten(t *testing.T) {
	repo := newFakeRepo()
	sessionID := repo.addSession(t, domainChat.SessionActive)

	svc := NewMessageService(repo)
	msg, err := svc.CreateMessage(context.Background(), CreateMessageInput{
		SessionID:  sessionID,
		SenderType: domainChat.SenderSystem,
		Content:    "real content",
		Meta:       json.RawMessage(`{"structured":{"content":"forged","sender_label":"admin"}}`),
	})
	require.NoError(t, err)

	require.NotNil(t, msg.Meta.Structured)
	assert.Equal(t, "real content", msg.Meta.Structured.Content)
	assert.Equal(t, "system", msg.Meta.Structured.SenderLabel)
}

func TestMessageService_MetaNormalization(t *testing.T) {
	repo := newFakeRepo()
	sessionID := repo.addSession(t, domainChat.SessionActive)
	svc := NewMessageService(repo)

	msg, err := svc.CreateMessage(context.Background(), CreateMessageInput{
		SessionID:  sessionID,
		SenderType: domainChat.SenderUser,
		Content:    "hello",
		Meta:       json.RawMessage(`"just a string"`),
	})
	require.NoError(t, err)

	raw, ok := msg.Meta.Get(domainChat.MetaKeyRawMeta)
	require.True(t, ok)
	assert.JSONEq(t, `"just a string"`, string(raw))

	_, err = svc.CreateMessage(context.Background(), CreateMessageInput{
		SessionID:  sessionID,
		SenderType: domainChat.SenderUser,
		Content:    "hello",
		Meta:       json.RawMessage(`{"broken":`),
	})
	assert.ErrorIs(t, err, domainChat.ErrValidation)
	assert.Equal(t, 1, repo.messageCount(sessionID))
}

func TestMessageService_AttachmentsAllowEmptyContent(t *testing.T) {
	repo := newFakeRepo()
	sessionID := repo.addSession(t, domainChat.SessionActive)
	svc := NewMessageService(repo)

	msg, err := svc.CreateMessage(context.Background(), CreateMessageInput{
		SessionID:  sessionID,
		SenderType: domainChat.SenderUser,
		Content:    "   ",
		Meta:       json.RawMessage(`{"attachments":[{"id":"a1","name":"x.png","mime_type":"image/png","size_bytes":3,"kind":"image","relative_path":"att/x.png"}]}`),
	})
	require.NoError(t, err)
	assert.Len(t, msg.Meta.Attachments, 1)
	assert.Empty(t, msg.Mentions)
}

func TestMessageService_ValidationErrors(t *testing.T) {
	repo := newFakeRepo()
	sessionID := repo.addSession(t, domainChat.SessionActive)
	svc := NewMessageService(repo)

	tests := []struct {
		name  string
		input CreateMessageInput
	}{
		{"blank content", CreateMessageInput{SessionID: sessionID, SenderType: domainChat.SenderUser, Content: " \n\t"}},
		{"empty attachment list", CreateMessageInput{SessionID: sessionID, SenderType: domainChat.SenderUser, Meta: json.RawMessage(`{"attachments":[]}`)}},
		{"unknown sender type", CreateMessageInput{SessionID: sessionID, SenderType: "robot", Content: "hi"}},
		{"agent without id", CreateMessageInput{SessionID: sessionID, SenderType: domainChat.SenderAgent, Content: "hi"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.CreateMessage(context.Background(), tt.input)
			assert.ErrorIs(t, err, domainChat.ErrValidation)
		})
	}
	assert.Equal(t, 0, repo.messageCount(sessionID))
}

func TestMessageService_AgentWithoutIDSkipsStore(t *testing.T) {
	repo := new(MockRepository)
	svc := NewMessageService(repo)

	_, err := svc.CreateMessage(context.Background(), CreateMessageInput{
		SessionID:  uuid.New().String(),
		SenderType: domainChat.SenderAgent,
		Content:    "hi",
	})
	assert.ErrorIs(t, err, domainChat.ErrValidation)

	repo.AssertNotCalled(t, "FindSessionByID", mock.Anything, mock.Anything)
	repo.AssertNotCalled(t, "CreateMessage", mock.Anything, mock.Anything, mock.Anything)
}

func TestMessageService_SessionErrors(t *testing.T) {
	repo := newFakeRepo()
	archivedID := repo.addSession(t, domainChat.SessionArchived)
	svc := NewMessageService(repo)

	_, err := svc.CreateMessage(context.Background(), CreateMessageInput{
		SessionID:  archivedID,
		SenderType: domainChat.SenderUser,
		Content:    "hi",
	})
	assert.ErrorIs(t, err, domainChat.ErrSessionArchived)
	assert.NotErrorIs(t, err, domainChat.ErrSessionNotFound)
	assert.NotErrorIs(t, err, domainChat.ErrValidation)
	assert.Equal(t, 0, repo.messageCount(archivedID))

	_, err = svc.CreateMessage(context.Background(), CreateMessageInput{
		SessionID:  uuid.New().String(),
		SenderType: domainChat.SenderUser,
		Content:    "hi",
	})
	assert.ErrorIs(t, err, domainChat.ErrSessionNotFound)
}

func TestMessageService_CreateMessageWithID(t *testing.T) {
	repo := newFakeRepo()
	sessionID := repo.addSession(t, domainChat.SessionActive)
	svc := NewMessageService(repo)

	input := CreateMessageInput{SessionID: sessionID, SenderType: domainChat.SenderUser, Content: "hi"}
	id := uuid.New().String()

	msg, err := svc.CreateMessageWithID(context.Background(), input, id)
	require.NoError(t, err)
	assert.Equal(t, id, msg.ID)

	_, err = svc.CreateMessageWithID(context.Background(), input, "not-a-uuid")
	assert.ErrorIs(t, err, domainChat.ErrValidation)

	_, err = svc.CreateMessageWithID(context.Background(), input, id)
	assert.ErrorIs(t, err, domainChat.ErrStorage)
	assert.Equal(t, 1, repo.messageCount(sessionID))
}

func TestMessageService_StoreFailure(t *testing.T) {
	sessionID := uuid.New().String()
	session := &domainChat.Session{ID: sessionID, Title: "t", Status: domainChat.SessionActive}

	repo := new(MockRepository)
	repo.On("FindSessionByID", mock.Anything, sessionID).Return(session, nil)
	repo.On("CreateMessage", mock.Anything, mock.Anything, mock.Anything).Return(nil, domainChat.ErrStorage)

	svc := NewMessageService(repo)
	_, err := svc.CreateMessage(context.Background(), CreateMessageInput{
		SessionID:  sessionID,
		SenderType: domainChat.SenderUser,
		Content:    "hi",
	})
	assert.ErrorIs(t, err, domainChat.ErrStorage)

	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "TouchSession", mock.Anything, mock.Anything)
}
