package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/oriys/nimbus-functions/internal/domain"
	"github.com/oriys/nimbus-functions/internal/host"
)

// customHandlerRequest 是 Azure Functions 宿主转发非 HTTP 触发时的请求体。
// Data 以绑定名为键，Metadata 是触发器附带的属性。
type customHandlerRequest struct {
	Data     map[string]json.RawMessage `json:"Data"`
	Metadata map[string]json.RawMessage `json:"Metadata"`
}

// customHandlerResponse 是返回给 Azure Functions 宿主的响应体。
type customHandlerResponse struct {
	Outputs     map[string]any `json:"Outputs"`
	Logs        []string       `json:"Logs"`
	ReturnValue any            `json:"ReturnValue"`
}

const maxCustomHandlerBody = 4 << 20

// InvokeCustomHandler 处理 Azure Functions 自定义处理程序协议的调用。
// HTTP端点: POST /{function}
//
// 返回值：
//   - 200: 处理函数成功
//   - 400: 请求体不是合法的协议载荷
//   - 404: 函数不存在或不接受消息触发
//   - 500: 处理函数返回错误，宿主据此决定重试或转入毒信队列
func (h *Handler) InvokeCustomHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "function")

	var req customHandlerRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxCustomHandlerBody)).Decode(&req); err != nil {
		writeErrorWithContext(w, r, http.StatusBadRequest, "invalid custom handler payload: "+err.Error())
		return
	}

	binding, body := firstBinding(req.Data)
	metadata := flattenMetadata(req.Metadata)
	ev, err := host.NewEvent(metadata["Id"], fmt.Sprintf("azure-functions://%s/%s", name, binding),
		customHandlerEventType(metadata), body, metadata)
	if err != nil && h.logger != nil {
		h.logger.WithError(err).WithField("function", name).Debug("Dropped custom handler metadata")
	}

	inv, err := h.invoker.InvokeEvent(r.Context(), name, ev)
	if err != nil {
		status := statusForError(err)
		resp := customHandlerResponse{
			Outputs: map[string]any{},
			Logs:    []string{fmt.Sprintf("Function %s failed: %v", name, err)},
		}
		writeJSON(w, status, resp)
		return
	}

	writeJSON(w, http.StatusOK, customHandlerResponse{
		Outputs: map[string]any{},
		Logs:    []string{fmt.Sprintf("Executed %s (invocation %s)", name, inv.ID)},
	})
}

// firstBinding 返回按名称排序后的第一个绑定及其载荷。
// 字符串形式的载荷会被反转义，其余 JSON 值按原始字节传递。
func firstBinding(data map[string]json.RawMessage) (string, []byte) {
	if len(data) == 0 {
		return "", nil
	}
	names := make([]string, 0, len(data))
	for k := range data {
		names = append(names, k)
	}
	sort.Strings(names)
	return names[0], bindingPayload(data[names[0]])
}

func bindingPayload(raw json.RawMessage) []byte {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []byte(s)
	}
	return []byte(raw)
}

// flattenMetadata 将元数据值转为字符串，字符串值去掉引号。
func flattenMetadata(md map[string]json.RawMessage) map[string]string {
	out := make(map[string]string, len(md))
	for k, v := range md {
		var s string
		if err := json.Unmarshal(v, &s); err == nil {
			out[k] = s
			continue
		}
		out[k] = string(v)
	}
	return out
}

// customHandlerEventType 根据元数据判断触发来源。
func customHandlerEventType(md map[string]string) string {
	if _, ok := md["DequeueCount"]; ok {
		return domain.EventTypeQueueMessage
	}
	for _, key := range []string{"PartitionContext", "SequenceNumber", "Offset"} {
		if _, ok := md[key]; ok {
			return domain.EventTypeStreamRecord
		}
	}
	return domain.EventTypeCustomHandler
}
