package chain

import (
	"reflect"
	"strings"
)

// Condition 控制步骤是否执行。
// type 为 compare 时比较 left 与 right；为 exists 时探测引用可达性。
// 不认识的类型或任何解析失败都按不满足处理，绝不向外抛错。
type Condition struct {
	Type      string `json:"type"`
	Left      any    `json:"left,omitempty"`
	Operator  string `json:"operator,omitempty"`
	Right     any    `json:"right,omitempty"`
	Reference string `json:"reference,omitempty"`
}

// evaluate 计算条件是否满足。
func (c *Condition) evaluate(results map[string]any) bool {
	condType := c.Type
	if condType == "" {
		condType = "compare"
	}

	switch condType {
	case "compare":
		left, ok := resolveOperand(c.Left, results)
		if !ok {
			return false
		}
		right, ok := resolveOperand(c.Right, results)
		if !ok {
			return false
		}
		operator := c.Operator
		if operator == "" {
			operator = "=="
		}
		return compare(left, operator, right)
	case "exists":
		if strings.TrimSpace(c.Reference) == "" {
			return false
		}
		_, err := resolveReference(c.Reference, results)
		return err == nil
	default:
		return false
	}
}

func resolveOperand(value any, results map[string]any) (any, bool) {
	if ref, ok := isReference(value); ok {
		resolved, err := resolveReference(ref, results)
		if err != nil {
			return nil, false
		}
		return resolved, true
	}
	return value, true
}

// compare 对两个操作数应用比较运算。
// 数值统一折算到 float64；字符串按字典序比较；其余类型只支持相等性判断。
func compare(left any, operator string, right any) bool {
	if lNum, lOK := asFloat(left); lOK {
		if rNum, rOK := asFloat(right); rOK {
			switch operator {
			case ">":
				return lNum > rNum
			case "<":
				return lNum < rNum
			case ">=":
				return lNum >= rNum
			case "<=":
				return lNum <= rNum
			case "==":
				return lNum == rNum
			case "!=":
				return lNum != rNum
			}
			return false
		}
	}

	if lStr, lOK := left.(string); lOK {
		if rStr, rOK := right.(string); rOK {
			switch operator {
			case ">":
				return lStr > rStr
			case "<":
				return lStr < rStr
			case ">=":
				return lStr >= rStr
			case "<=":
				return lStr <= rStr
			case "==":
				return lStr == rStr
			case "!=":
				return lStr != rStr
			}
			return false
		}
	}

	switch operator {
	case "==":
		return reflect.DeepEqual(left, right)
	case "!=":
		return !reflect.DeepEqual(left, right)
	}
	return false
}

func asFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case int:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case float32:
		return float64(typed), true
	case float64:
		return typed, true
	default:
		return 0, false
	}
}
