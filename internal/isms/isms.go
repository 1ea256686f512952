package isms

import "context"

// Result 是 CRUD 协作方返回的统一结构。
type Result struct {
	Type string         `json:"type"`
	Text string         `json:"text"`
	Data map[string]any `json:"data,omitempty"`
}

const (
	ResultTypeSuccess = "success"
	ResultTypeError   = "error"
)

// Succeeded 判断协作方是否返回成功。
func (r *Result) Succeeded() bool {
	return r != nil && r.Type == ResultTypeSuccess
}

// Coordinator 定义业务对象 CRUD 后端的窄接口。
// 路由器不关心操作具体如何落库，只消费统一的结果结构。
type Coordinator interface {
	Dispatch(ctx context.Context, operation, objectType, message string) (*Result, error)
}
