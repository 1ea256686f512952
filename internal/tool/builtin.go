package tool

import (
	"context"
	"fmt"
	"strings"

	xerrors "ISMS-Agent/internal/errors"
	"ISMS-Agent/internal/isms"
	"ISMS-Agent/internal/llm"
)

// stringParam 读取字符串参数，缺失或类型不符时返回错误。
func stringParam(params map[string]any, key string) (string, error) {
	raw, ok := params[key]
	if !ok {
		return "", xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("缺少参数 %q", key))
	}
	value, ok := raw.(string)
	if !ok {
		return "", xerrors.New(xerrors.CodeInvalidArgument,
			fmt.Sprintf("参数 %q 必须是字符串", key))
	}
	return value, nil
}

// optionalStringParam 读取可选字符串参数，缺失时返回空串。
func optionalStringParam(params map[string]any, key string) string {
	if raw, ok := params[key]; ok {
		if value, ok := raw.(string); ok {
			return value
		}
	}
	return ""
}

// coordinatorTool 构造一个包装 CRUD 协作方的工具。
func coordinatorTool(coordinator isms.Coordinator, operation string) InvokeFunc {
	return func(ctx context.Context, params map[string]any) (any, error) {
		objectType, err := stringParam(params, "object_type")
		if err != nil {
			return nil, err
		}
		message := optionalStringParam(params, "message")
		if message == "" {
			name := optionalStringParam(params, "name")
			message = strings.TrimSpace(fmt.Sprintf("%s %s %s", operation, objectType, name))
		}
		result, err := coordinator.Dispatch(ctx, operation, objectType, message)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "CRUD 协作方调用失败",
				xerrors.WithMetadata("operation", operation),
				xerrors.WithMetadata("object_type", objectType))
		}
		out := map[string]any{
			"type": result.Type,
			"text": result.Text,
		}
		if result.Data != nil {
			out["data"] = result.Data
		}
		return out, nil
	}
}

// RegisterBuiltins 注册内置工具：五个 CRUD 操作加文本生成。
func RegisterBuiltins(registry *Registry, coordinator isms.Coordinator, reasoner llm.Client) error {
	builtins := []Descriptor{
		{
			Name:        "create_object",
			Description: "Create an ISMS object. Params: object_type, name or message.",
			Invoke:      coordinatorTool(coordinator, "create"),
		},
		{
			Name:        "list_objects",
			Description: "List ISMS objects of a type. Params: object_type.",
			Invoke:      coordinatorTool(coordinator, "list"),
		},
		{
			Name:        "get_object",
			Description: "Fetch one ISMS object. Params: object_type, name or message.",
			Invoke:      coordinatorTool(coordinator, "get"),
		},
		{
			Name:        "update_object",
			Description: "Update an ISMS object. Params: object_type, name or message.",
			Invoke:      coordinatorTool(coordinator, "update"),
		},
		{
			Name:        "delete_object",
			Description: "Delete an ISMS object. Params: object_type, name or message.",
			Invoke:      coordinatorTool(coordinator, "delete"),
		},
		{
			Name:        "generate_text",
			Description: "Generate text from a prompt via the reasoning collaborator. Params: prompt.",
			Invoke: func(ctx context.Context, params map[string]any) (any, error) {
				prompt, err := stringParam(params, "prompt")
				if err != nil {
					return nil, err
				}
				resp, err := reasoner.Generate(ctx, llm.Request{Request: prompt})
				if err != nil {
					return nil, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "推理协作方调用失败")
				}
				return resp.Reply, nil
			},
		},
	}

	for _, desc := range builtins {
		if err := registry.Register(desc); err != nil {
			return err
		}
	}
	return nil
}
