package chat

import (
	"bytes"
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/google/uuid"
)

// 元数据中的已知键
const (
	MetaKeyAttachments  = "attachments"
	MetaKeySender       = "sender"
	MetaKeyStructured   = "structured"
	MetaKeySenderHandle = "sender_handle"
	MetaKeyRawMeta      = "raw_meta"

	metaKeyReference          = "reference"
	metaKeyReferenceMessageID = "reference_message_id"
)

// Metadata 消息元数据
// 已知子结构使用强类型字段，其余键原样保存在 Extra 中，保证往返序列化不丢字段。
// 已知键的值无法严格解码时同样保存在 Extra 中。
type Metadata struct {
	Attachments  []AttachmentMeta
	Sender       *SenderDescriptor
	Structured   *StructuredSnapshot
	SenderHandle *string
	Extra        map[string]json.RawMessage
}

// NormalizeMetadata 把调用方提供的任意 JSON 规范化为元数据对象
// 空输入视为 {}，非对象值包装为 {"raw_meta": <value>}
func NormalizeMetadata(raw json.RawMessage) (Metadata, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Metadata{}, nil
	}
	if !json.Valid(trimmed) {
		return Metadata{}, NewValidationError("meta is not valid JSON")
	}

	if trimmed[0] != '{' {
		return Metadata{
			Extra: map[string]json.RawMessage{
				MetaKeyRawMeta: append(json.RawMessage(nil), trimmed...),
			},
		}, nil
	}

	var meta Metadata
	if err := json.Unmarshal(trimmed, &meta); err != nil {
		return Metadata{}, NewValidationError(fmt.Sprintf("meta: %v", err))
	}
	return meta, nil
}

// UnmarshalJSON 实现 json.Unmarshaler
func (m *Metadata) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("metadata must be a JSON object: %w", err)
	}
	if fields == nil {
		// null
		*m = Metadata{}
		return nil
	}

	result := Metadata{}
	for key, value := range fields {
		switch key {
		case MetaKeyAttachments:
			var attachments []AttachmentMeta
			if decodeStrict(value, &attachments) {
				result.Attachments = attachments
				continue
			}
		case MetaKeySender:
			var sender SenderDescriptor
			if decodeStrict(value, &sender) {
				result.Sender = &sender
				continue
			}
		case MetaKeyStructured:
			var structured StructuredSnapshot
			if decodeStrict(value, &structured) {
				result.Structured = &structured
				continue
			}
		case MetaKeySenderHandle:
			var handle string
			if decodeStrict(value, &handle) {
				result.SenderHandle = &handle
				continue
			}
		}
		result.setExtra(key, value)
	}

	*m = result
	return nil
}

// MarshalJSON 实现 json.Marshaler，键按字典序输出
func (m Metadata) MarshalJSON() ([]byte, error) {
	fields := make(map[string]json.RawMessage, len(m.Extra)+4)
	for key, value := range m.Extra {
		fields[key] = value
	}
	if m.Attachments != nil {
		fields[MetaKeyAttachments] = rawOf(m.Attachments)
	}
	if m.Sender != nil {
		fields[MetaKeySender] = rawOf(m.Sender)
	}
	if m.Structured != nil {
		fields[MetaKeyStructured] = rawOf(m.Structured)
	}
	if m.SenderHandle != nil {
		fields[MetaKeySenderHandle] = rawOf(*m.SenderHandle)
	}
	return json.Marshal(fields)
}

// Get 读取未识别键的原始值
func (m *Metadata) Get(key string) (json.RawMessage, bool) {
	value, ok := m.Extra[key]
	return value, ok
}

// Set 写入未识别键，值会被编码为 JSON
func (m *Metadata) Set(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode meta key %s: %w", key, err)
	}
	m.setExtra(key, data)
	return nil
}

// HasSender 元数据中是否已有 sender 块（包括调用方提供的非标准结构）
func (m *Metadata) HasSender() bool {
	if m.Sender != nil {
		return true
	}
	_, ok := m.Extra[MetaKeySender]
	return ok
}

// HasAttachments 是否携带至少一个附件
func (m *Metadata) HasAttachments() bool {
	if len(m.Attachments) > 0 {
		return true
	}
	raw, ok := m.Extra[MetaKeyAttachments]
	if !ok {
		return false
	}
	// 非标准附件结构按宽松规则解码
	var attachments []AttachmentMeta
	if err := json.Unmarshal(raw, &attachments); err != nil {
		return false
	}
	return len(attachments) > 0
}

// ReferenceMessageID 返回引用的消息 ID
// 优先读取 reference.message_id，其次读取 reference_message_id
func (m *Metadata) ReferenceMessageID() (string, bool) {
	var candidate string

	if raw, ok := m.Extra[metaKeyReference]; ok {
		var reference struct {
			MessageID *string `json:"message_id"`
		}
		if err := json.Unmarshal(raw, &reference); err == nil && reference.MessageID != nil {
			candidate = *reference.MessageID
		}
	}
	if candidate == "" {
		if raw, ok := m.Extra[metaKeyReferenceMessageID]; ok {
			_ = json.Unmarshal(raw, &candidate)
		}
	}
	if candidate == "" {
		return "", false
	}

	id, err := uuid.Parse(candidate)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

// SenderOnly 返回只保留 sender 块的精简元数据
func (m *Metadata) SenderOnly() Metadata {
	minimal := Metadata{}
	if m.Sender != nil {
		sender := *m.Sender
		minimal.Sender = &sender
		return minimal
	}
	if raw, ok := m.Extra[MetaKeySender]; ok {
		minimal.setExtra(MetaKeySender, raw)
	}
	return minimal
}

// Clone 深拷贝元数据，逐字段复制，不经过 JSON 往返
func (m *Metadata) Clone() Metadata {
	clone := Metadata{
		SenderHandle: cloneString(m.SenderHandle),
	}
	if m.Attachments != nil {
		clone.Attachments = make([]AttachmentMeta, len(m.Attachments))
		for i, attachment := range m.Attachments {
			attachment.MimeType = cloneString(attachment.MimeType)
			clone.Attachments[i] = attachment
		}
	}
	if m.Sender != nil {
		sender := *m.Sender
		sender.ID = cloneString(sender.ID)
		sender.Handle = cloneString(sender.Handle)
		sender.Name = cloneString(sender.Name)
		clone.Sender = &sender
	}
	if m.Structured != nil {
		structured := *m.Structured
		structured.SenderID = cloneString(structured.SenderID)
		structured.SenderHandle = cloneString(structured.SenderHandle)
		if structured.Mentions != nil {
			structured.Mentions = append([]string{}, structured.Mentions...)
		}
		clone.Structured = &structured
	}
	if m.Extra != nil {
		clone.Extra = make(map[string]json.RawMessage, len(m.Extra))
		for key, value := range m.Extra {
			clone.Extra[key] = append(json.RawMessage(nil), value...)
		}
	}
	return clone
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// setExtra 写入 Extra，同时清除同名强类型字段
func (m *Metadata) setExtra(key string, value json.RawMessage) {
	switch key {
	case MetaKeyAttachments:
		m.Attachments = nil
	case MetaKeySender:
		m.Sender = nil
	case MetaKeyStructured:
		m.Structured = nil
	case MetaKeySenderHandle:
		m.SenderHandle = nil
	}
	if m.Extra == nil {
		m.Extra = make(map[string]json.RawMessage)
	}
	m.Extra[key] = append(json.RawMessage(nil), value...)
}

// decodeStrict 严格解码：拒绝 null、未知字段，且重新编码后必须与原值等价
func decodeStrict(data json.RawMessage, target any) bool {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		return false
	}
	decoder := json.NewDecoder(bytes.NewReader(trimmed))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		return false
	}
	if decoder.More() {
		return false
	}

	encoded, err := json.Marshal(target)
	if err != nil {
		return false
	}
	var original, roundTrip any
	if json.Unmarshal(trimmed, &original) != nil || json.Unmarshal(encoded, &roundTrip) != nil {
		return false
	}
	return reflect.DeepEqual(original, roundTrip)
}

// SetStructured 覆盖 structured 快照
func (m *Metadata) SetStructured(snapshot StructuredSnapshot) {
	delete(m.Extra, MetaKeyStructured)
	m.Structured = &snapshot
}

// SetSender 写入 sender 块
func (m *Metadata) SetSender(sender SenderDescriptor) {
	delete(m.Extra, MetaKeySender)
	m.Sender = &sender
}
