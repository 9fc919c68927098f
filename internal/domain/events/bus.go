package events

// Handler 事件订阅者
type Handler interface {
	// HandleEvent 返回的错误只记录日志，不重试
	HandleEvent(event Event) error
}

// HandlerFunc 把普通函数适配为 Handler
type HandlerFunc func(event Event) error

// HandleEvent 调用 f(event)
func (f HandlerFunc) HandleEvent(event Event) error {
	return f(event)
}

// EventBus 进程内事件总线，历史目录监听器发布，历史服务订阅
type EventBus interface {
	// Subscribe 订阅单个事件类型，返回的函数可重复调用
	Subscribe(eventType EventType, handler Handler) (unsubscribe func())

	// SubscribeMultiple 用同一个处理器订阅多个事件类型
	SubscribeMultiple(eventTypes []EventType, handler Handler) (unsubscribe func())

	// Publish 异步分发给当前订阅者，关闭后丢弃
	Publish(event Event)

	// Close 拒绝新事件并等待处理中的事件完成
	Close()
}
