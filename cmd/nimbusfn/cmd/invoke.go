// 本文件实现 invoke 命令，通过 HTTP 触发调用函数。
package cmd

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <function>",
	Short: "Invoke a function over HTTP",
	Long: `Invoke a function through the host's /api/{function} endpoint.

Examples:
  # Query string parameters
  nimbusfn invoke simple-function --query name=World

  # JSON body
  nimbusfn invoke simple-function --data '{"name": "World"}'

  # Body from file or stdin
  nimbusfn invoke write-function --file doc.json
  cat doc.json | nimbusfn invoke write-function

  # Logging demo with a level
  nimbusfn invoke LoggingFunction -q level=warning -q message="disk almost full"`,
	Args: cobra.ExactArgs(1),
	RunE: runInvoke,
}

var (
	invokeData   string
	invokeFile   string
	invokeQuery  []string
	invokeMethod string
)

func init() {
	rootCmd.AddCommand(invokeCmd)

	invokeCmd.Flags().StringVarP(&invokeData, "data", "d", "", "Request body")
	invokeCmd.Flags().StringVarP(&invokeFile, "file", "f", "", "Read request body from file")
	invokeCmd.Flags().StringArrayVarP(&invokeQuery, "query", "q", nil, "Query parameter as key=value (repeatable)")
	invokeCmd.Flags().StringVarP(&invokeMethod, "method", "X", "", "HTTP method (default GET, or POST when a body is given)")
}

func runInvoke(cmd *cobra.Command, args []string) error {
	name := args[0]

	body, err := invokeBody(cmd)
	if err != nil {
		return err
	}

	query, err := parseQuery(invokeQuery)
	if err != nil {
		return err
	}

	method := strings.ToUpper(invokeMethod)
	if method == "" {
		method = http.MethodGet
		if body != nil {
			method = http.MethodPost
		}
	}

	result, err := NewClient().Invoke(commandContext(cmd), method, name, query, body)
	if err != nil {
		return err
	}
	if err := NewPrinter(cmd.OutOrStdout()).PrintInvokeResult(result); err != nil {
		return err
	}
	if !result.Succeeded() {
		return fmt.Errorf("function %s returned status %d", name, result.StatusCode)
	}
	return nil
}

// invokeBody 依次从 --data、--file、标准输入读取请求体；都没有时返回 nil。
func invokeBody(cmd *cobra.Command) ([]byte, error) {
	switch {
	case invokeData != "":
		return []byte(invokeData), nil
	case invokeFile != "":
		data, err := os.ReadFile(invokeFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read file: %w", err)
		}
		return data, nil
	}

	if f, ok := cmd.InOrStdin().(*os.File); ok {
		stat, err := f.Stat()
		if err != nil || stat.Mode()&os.ModeCharDevice != 0 {
			return nil, nil
		}
	}
	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return nil, fmt.Errorf("failed to read stdin: %w", err)
	}
	if len(data) == 0 {
		return nil, nil
	}
	return data, nil
}

func parseQuery(pairs []string) (url.Values, error) {
	q := url.Values{}
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid query %q, expected key=value", p)
		}
		q.Add(k, v)
	}
	return q, nil
}
