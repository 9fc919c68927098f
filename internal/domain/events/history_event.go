package events

import "time"

// HistoryFileEvent 历史文件变更事件
// 当 {history_dir}/{session}.json 或 {session}_split.json 发生变更时触发
type HistoryFileEvent struct {
	// EventType 事件类型（created/modified/deleted）
	EventType EventType
	// SessionID 会话 ID（文件名去掉后缀）
	SessionID string
	// Split 是否为溢出文件
	Split bool
	// FilePath 文件完整路径
	FilePath string
	// EventTime 事件发生时间
	EventTime time.Time
}

// Type 实现 Event 接口
func (e *HistoryFileEvent) Type() EventType {
	return e.EventType
}

// Timestamp 实现 Event 接口
func (e *HistoryFileEvent) Timestamp() time.Time {
	return e.EventTime
}
