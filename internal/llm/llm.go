package llm

import "context"

// Request 描述发送给大模型的升级请求上下文。
type Request struct {
	Request        string
	Operation      string
	ObjectType     string
	TrackerSummary string
	History        []HistoryEntry
	Knowledge      []KnowledgeCard
}

// Response 是大模型推理得到的结构化输出。
// Reply 可能是最终的自然语言回答，也可能是一段工具链 JSON。
type Response struct {
	Thought string
	Reply   string
}

// KnowledgeCard 表示提供给大模型的知识切片，帮助生成更加准确的回复。
type KnowledgeCard struct {
	Title   string
	Content string
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// HistoryEntry 描述会话内的一轮历史请求，用于为大模型提供上下文记忆。
type HistoryEntry struct {
	Request   string
	Reply     string
	Mode      string
	CreatedAt int64
}
