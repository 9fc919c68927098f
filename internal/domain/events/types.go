// Package events 定义领域事件类型和接口
// 用于系统内部的事件驱动通信
package events

import "time"

// EventType 事件类型标识
type EventType string

// 历史文件相关事件类型
const (
	// HistoryFileCreated 历史文件创建事件
	HistoryFileCreated EventType = "history.file.created"
	// HistoryFileModified 历史文件修改事件
	HistoryFileModified EventType = "history.file.modified"
	// HistoryFileDeleted 历史文件删除事件
	HistoryFileDeleted EventType = "history.file.deleted"
)

// HistoryFileEventTypes 所有历史文件事件类型
var HistoryFileEventTypes = []EventType{
	HistoryFileCreated,
	HistoryFileModified,
	HistoryFileDeleted,
}

// Event 领域事件接口
// 所有事件类型都必须实现此接口
type Event interface {
	// Type 返回事件类型
	Type() EventType
	// Timestamp 返回事件发生时间
	Timestamp() time.Time
}
