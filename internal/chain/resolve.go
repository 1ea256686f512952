package chain

import (
	"fmt"
	"strconv"
	"strings"

	xerrors "ISMS-Agent/internal/errors"
)

// 链路执行专用错误码，在包加载时登记到统一错误码表。
const (
	CodeToolNotFound        xerrors.Code = "TOOL_NOT_FOUND"
	CodeReferenceResolution xerrors.Code = "REFERENCE_RESOLUTION"
)

func init() {
	xerrors.Register(CodeToolNotFound, xerrors.Attributes{
		Message:  "tool not registered",
		Severity: xerrors.SeverityWarning,
	})
	xerrors.Register(CodeReferenceResolution, xerrors.Attributes{
		Message:  "reference resolution failed",
		Severity: xerrors.SeverityWarning,
	})
}

// isReference 判断参数值是否是对前序结果的引用。
func isReference(value any) (string, bool) {
	text, ok := value.(string)
	if !ok || !strings.HasPrefix(text, "$") {
		return "", false
	}
	return text, true
}

// resolveReference 解析形如 $step1.field.0 的引用。
// 首个 `.` 之前是根变量名，其余部分按字段名或非负下标逐级访问。
func resolveReference(ref string, results map[string]any) (any, error) {
	ref = strings.TrimPrefix(ref, "$")

	varName, fieldPath, _ := strings.Cut(ref, ".")
	value, ok := results[varName]
	if !ok {
		return nil, xerrors.New(CodeReferenceResolution,
			fmt.Sprintf("引用 %q 在结果集中不存在", varName))
	}

	if fieldPath == "" {
		return value, nil
	}
	for _, field := range strings.Split(fieldPath, ".") {
		switch current := value.(type) {
		case map[string]any:
			value = current[field]
		case []any:
			index, err := strconv.Atoi(field)
			if err != nil || index < 0 {
				return nil, xerrors.New(CodeReferenceResolution,
					fmt.Sprintf("字段 %q 不是合法的列表下标", field))
			}
			if index >= len(current) {
				return nil, xerrors.New(CodeReferenceResolution,
					fmt.Sprintf("下标 %d 超出列表长度 %d", index, len(current)))
			}
			value = current[index]
		default:
			return nil, xerrors.New(CodeReferenceResolution,
				fmt.Sprintf("无法在 %T 类型的值中访问字段 %q", value, field))
		}
	}
	return value, nil
}

// resolveParams 解析一个步骤的全部参数。
// 字符串引用直接解析；嵌套 map 递归处理；列表中的引用元素逐个解析。
func resolveParams(params map[string]any, results map[string]any) (map[string]any, error) {
	resolved := make(map[string]any, len(params))
	for key, value := range params {
		out, err := resolveValue(value, results)
		if err != nil {
			return nil, err
		}
		resolved[key] = out
	}
	return resolved, nil
}

func resolveValue(value any, results map[string]any) (any, error) {
	if ref, ok := isReference(value); ok {
		return resolveReference(ref, results)
	}
	switch typed := value.(type) {
	case map[string]any:
		return resolveParams(typed, results)
	case []any:
		out := make([]any, len(typed))
		for i, item := range typed {
			if ref, ok := isReference(item); ok {
				resolved, err := resolveReference(ref, results)
				if err != nil {
					return nil, err
				}
				out[i] = resolved
			} else {
				out[i] = item
			}
		}
		return out, nil
	default:
		return value, nil
	}
}
