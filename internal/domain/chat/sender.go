package chat

// 默认发送方标签
const (
	DefaultUserLabel   = "user"
	DefaultAgentLabel  = "agent"
	DefaultSystemLabel = "system"
)

// ResolveSender 解析发送方描述
// user 使用 sender_handle，缺省为 "user"；agent 依次使用显示名称、原始 ID、"agent"；system 固定为 "system"
func ResolveSender(senderType SenderType, senderID *string, handle *string, agentName *string) SenderDescriptor {
	var label string
	switch senderType {
	case SenderUser:
		label = DefaultUserLabel
		if handle != nil {
			label = *handle
		}
	case SenderAgent:
		switch {
		case agentName != nil:
			label = *agentName
		case senderID != nil:
			label = *senderID
		default:
			label = DefaultAgentLabel
		}
	default:
		label = DefaultSystemLabel
	}

	return SenderDescriptor{
		Type:   senderType,
		ID:     copyString(senderID),
		Handle: copyString(handle),
		Name:   copyString(agentName),
		Label:  label,
	}
}

// HistoryLabel 历史文件中的发送方标识：user:{handle}、agent:{name} 或 system
func (d SenderDescriptor) HistoryLabel() string {
	switch d.Type {
	case SenderUser:
		return "user:" + d.Label
	case SenderAgent:
		return "agent:" + d.Label
	default:
		return DefaultSystemLabel
	}
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
