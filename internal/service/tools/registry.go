package tools

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/tool"
	"github.com/cloudwego/eino/schema"
	"go.uber.org/zap"

	"github.com/zhouzirui/enrique/backend/internal/metrics"
)

// Registry 按名称管理工具。
type Registry struct {
	tools  map[string]tool.InvokableTool
	infos  []*schema.ToolInfo
	logger *zap.Logger
}

// NewRegistry indexes tools by the name their Info reports.
func NewRegistry(ctx context.Context, logger *zap.Logger, tools ...tool.InvokableTool) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		tools:  make(map[string]tool.InvokableTool, len(tools)),
		logger: logger.Named("tools"),
	}
	for _, t := range tools {
		info, err := t.Info(ctx)
		if err != nil {
			return nil, fmt.Errorf("tool info: %w", err)
		}
		if _, dup := r.tools[info.Name]; dup {
			return nil, fmt.Errorf("duplicate tool %q", info.Name)
		}
		r.tools[info.Name] = t
		r.infos = append(r.infos, info)
	}
	return r, nil
}

// Infos returns tool descriptions in registration order.
func (r *Registry) Infos() []*schema.ToolInfo {
	out := make([]*schema.ToolInfo, len(r.infos))
	copy(out, r.infos)
	return out
}

// Describe lists tools in registration order with their argument schemas.
// Tools defined outside this package are listed without parameters.
func (r *Registry) Describe() []Description {
	out := make([]Description, 0, len(r.infos))
	for _, info := range r.infos {
		if d, ok := r.tools[info.Name].(describer); ok {
			out = append(out, d.describe())
			continue
		}
		out = append(out, Description{Name: info.Name, Description: info.Desc})
	}
	return out
}

// Has reports whether a tool is registered.
func (r *Registry) Has(name string) bool {
	_, ok := r.tools[name]
	return ok
}

// Invoke runs the named tool with JSON arguments.
func (r *Registry) Invoke(ctx context.Context, name, argumentsInJSON string) (string, error) {
	t, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}

	out, err := t.InvokableRun(ctx, argumentsInJSON)
	metrics.ToolInvocations.WithLabelValues(name, metrics.StatusOf(err)).Inc()
	if err != nil {
		r.logger.Warn("tool failed", zap.String("tool", name), zap.Error(err))
		return "", err
	}
	r.logger.Debug("tool invoked", zap.String("tool", name), zap.Int("outputLength", len(out)))
	return out, nil
}
