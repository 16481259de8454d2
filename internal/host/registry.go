// Package host 实现进程内的函数宿主：注册处理函数、为每次调用分配标识、
// 创建追踪 Span、派生日志条目并记录指标。
package host

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/oriys/nimbus-functions/internal/domain"
)

// HTTPFunc 是 HTTP 触发的处理函数。
// 返回的 error 表示宿主层面的失败（配置缺失、下游故障），客户端输入错误应体现在 Response 中。
type HTTPFunc func(ctx context.Context, r *http.Request, log *logrus.Entry) (*domain.Response, error)

// MessageFunc 是队列、事件流或定时器触发的处理函数。
// 返回的 error 交给投递方决定是否重投。
type MessageFunc func(ctx context.Context, msg *domain.Message, log *logrus.Entry) error

// Function 描述一个已注册的函数。同一个函数可以同时接受 HTTP 与消息触发。
type Function struct {
	Name    string
	HTTP    HTTPFunc
	Message MessageFunc
}

// Triggers 返回函数接受的触发方式描述。
func (f *Function) Triggers() []string {
	var out []string
	if f.HTTP != nil {
		out = append(out, "http")
	}
	if f.Message != nil {
		out = append(out, "message")
	}
	return out
}

// Registry 保存函数名到处理函数的映射，可并发读取。
type Registry struct {
	mu  sync.RWMutex
	fns map[string]*Function
}

// NewRegistry 创建空注册表。
func NewRegistry() *Registry {
	return &Registry{fns: make(map[string]*Function)}
}

// Register 注册函数。名称为空、没有任何处理函数或重名时返回错误。
func (r *Registry) Register(fn Function) error {
	if strings.TrimSpace(fn.Name) == "" {
		return fmt.Errorf("register function: empty name")
	}
	if fn.HTTP == nil && fn.Message == nil {
		return fmt.Errorf("register function %s: no handler", fn.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.fns[fn.Name]; ok {
		return fmt.Errorf("register function %s: %w", fn.Name, domain.ErrFunctionExists)
	}
	r.fns[fn.Name] = &fn
	return nil
}

// Get 按名称查找函数。
func (r *Registry) Get(name string) (*Function, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.fns[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, domain.ErrFunctionNotFound)
	}
	return fn, nil
}

// Functions 返回按名称排序的全部函数。
func (r *Registry) Functions() []*Function {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Function, 0, len(r.fns))
	for _, fn := range r.fns {
		out = append(out, fn)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
