// 本文件实现输出格式化，支持 text、json、yaml 三种格式。
package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Printer 根据 output 配置格式化输出。
type Printer struct {
	format string
	writer io.Writer
}

// NewPrinter 创建输出到 w 的打印器。
func NewPrinter(w io.Writer) *Printer {
	format := viper.GetString("output")
	if format == "" {
		format = "text"
	}
	return &Printer{format: format, writer: w}
}

// PrintInvokeResult 打印调用结果。text 格式只输出响应体，状态信息写在前面。
func (p *Printer) PrintInvokeResult(r *InvokeResult) error {
	switch p.format {
	case "json":
		return p.printJSON(r)
	case "yaml":
		return p.printYAML(r)
	default:
		fmt.Fprintf(p.writer, "%s %d", colorStatus(r.StatusCode), r.StatusCode)
		if r.InvocationID != "" {
			fmt.Fprintf(p.writer, "  invocation=%s", r.InvocationID)
		}
		fmt.Fprintf(p.writer, "  (%d ms)\n", r.DurationMs)
		fmt.Fprintln(p.writer, r.Body)
		return nil
	}
}

// PrintFunctions 打印函数列表。
func (p *Printer) PrintFunctions(fns []FunctionInfo) error {
	switch p.format {
	case "json":
		return p.printJSON(fns)
	case "yaml":
		return p.printYAML(fns)
	}

	if len(fns) == 0 {
		fmt.Fprintln(p.writer, "No functions registered.")
		return nil
	}
	w := tabwriter.NewWriter(p.writer, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tTRIGGERS")
	for _, fn := range fns {
		fmt.Fprintf(w, "%s\t%s\n", fn.Name, strings.Join(fn.Triggers, ","))
	}
	return w.Flush()
}

func (p *Printer) printJSON(v interface{}) error {
	enc := json.NewEncoder(p.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (p *Printer) printYAML(v interface{}) error {
	enc := yaml.NewEncoder(p.writer)
	enc.SetIndent(2)
	return enc.Encode(v)
}

// colorStatus 按状态码着色
func colorStatus(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "\033[32mOK\033[0m"
	case code >= 400 && code < 500:
		return "\033[33mCLIENT ERROR\033[0m"
	default:
		return "\033[31mERROR\033[0m"
	}
}
