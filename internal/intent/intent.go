package intent

import (
	"regexp"
	"strings"
)

// Operation 枚举快速路径支持的 CRUD 操作。
type Operation string

const (
	OperationCreate Operation = "create"
	OperationList   Operation = "list"
	OperationGet    Operation = "get"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
)

// Intent 是词法规则匹配出的结构化意图。
type Intent struct {
	Operation  Operation `json:"operation"`
	ObjectType string    `json:"object_type"`
	Message    string    `json:"message"`
}

// objectTypes 列出当前支持的 ISMS 对象类型关键词（单复数）。
// 回退匹配按此顺序扫描。
var objectTypes = []string{
	"scope", "scopes", "asset", "assets", "control", "controls",
	"process", "processes", "person", "persons", "scenario", "scenarios",
	"incident", "incidents", "document", "documents", "domain", "domains",
	"unit", "units",
}

// irregularPlurals 是不规则复数的固定映射表。通用的去 s 规则会把
// "processes" 错误地还原成 "processe"，因此必须先查表再退回通用规则。
// 该表与历史版本保持一致，已知并不完整。
var irregularPlurals = map[string]string{
	"scopes":    "scope",
	"domains":   "domain",
	"units":     "unit",
	"processes": "process",
	"proces":    "process",
}

type rule struct {
	pattern   *regexp.Regexp
	operation Operation
	// typeGroup 指明对象类型位于第几个捕获组。
	typeGroup int
}

// rules 按声明顺序依次尝试，第一条命中即返回，不做打分和回溯。
// 顺序即优先级，调整顺序会改变歧义输入的归类结果。
var rules = []rule{
	{regexp.MustCompile(`^list\s+(\w+)`), OperationList, 1},
	{regexp.MustCompile(`^(get|show|view|display)\s+(\w+)\s+(.+)`), OperationGet, 2},
	{regexp.MustCompile(`^create\s+(\w+)\s+(.+)`), OperationCreate, 1},
	{regexp.MustCompile(`^update\s+(\w+)\s+(.+)`), OperationUpdate, 1},
	{regexp.MustCompile(`^(delete|remove)\s+(\w+)\s+(.+)`), OperationDelete, 2},
}

// Classify 将自由文本请求解析为结构化意图。
// 无副作用，同一输入总是得到相同结果。解析失败时第二个返回值为 false。
func Classify(request string) (Intent, bool) {
	normalized := strings.ToLower(strings.TrimSpace(request))
	if normalized == "" {
		return Intent{}, false
	}

	for _, r := range rules {
		match := r.pattern.FindStringSubmatch(normalized)
		if match == nil {
			continue
		}
		objectType := match[r.typeGroup]
		if objectType == "" {
			continue
		}
		return Intent{
			Operation:  r.operation,
			ObjectType: Singularize(objectType),
			Message:    request,
		}, true
	}

	// 回退：在请求中扫描已知对象类型关键词，默认按 list 处理。
	for _, objectType := range objectTypes {
		if strings.Contains(normalized, objectType) {
			return Intent{
				Operation:  OperationList,
				ObjectType: Singularize(objectType),
				Message:    request,
			}, true
		}
	}

	return Intent{}, false
}

// Singularize 将复数形式的对象类型还原为单数小写形式。
func Singularize(objectType string) string {
	objectType = strings.ToLower(strings.TrimSpace(objectType))
	if singular, ok := irregularPlurals[objectType]; ok {
		return singular
	}
	if strings.HasSuffix(objectType, "s") {
		return strings.TrimSuffix(objectType, "s")
	}
	return objectType
}

// KnownObjectType 判断给定类型是否属于支持的对象词表。
func KnownObjectType(objectType string) bool {
	normalized := Singularize(objectType)
	for _, candidate := range objectTypes {
		if Singularize(candidate) == normalized {
			return true
		}
	}
	return false
}
