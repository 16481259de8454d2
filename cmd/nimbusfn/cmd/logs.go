// 本文件实现 logs 命令，通过 websocket 实时查看宿主日志。
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

var logsCmd = &cobra.Command{
	Use:   "logs [function]",
	Short: "Stream host logs",
	Long: `Stream log records from the host's /api/logs/stream endpoint.

Without --follow the command prints what arrives within --duration and exits.

Examples:
  # Follow every function
  nimbusfn logs --follow

  # Follow one function
  nimbusfn logs LoggingFunction --follow

  # Output raw JSON records
  nimbusfn logs queue-function -f -o json`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLogs,
}

var (
	logsFollow   bool
	logsDuration time.Duration
)

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Keep streaming until interrupted")
	logsCmd.Flags().DurationVar(&logsDuration, "duration", 10*time.Second, "How long to listen without --follow")
}

// streamLogMessage 与宿主推送的日志记录结构一致。
type streamLogMessage struct {
	Timestamp    time.Time `json:"timestamp"`
	Level        string    `json:"level"`
	Function     string    `json:"function,omitempty"`
	InvocationID string    `json:"invocation_id,omitempty"`
	Trigger      string    `json:"trigger,omitempty"`
	Message      string    `json:"message"`
	Error        string    `json:"error,omitempty"`
}

func runLogs(cmd *cobra.Command, args []string) error {
	var function string
	if len(args) == 1 {
		function = args[0]
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if !logsFollow {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, logsDuration)
		defer cancel()
	}

	return followLogs(ctx, viper.GetString("api_url"), function, cmd.OutOrStdout())
}

func followLogs(ctx context.Context, baseURL, function string, out io.Writer) error {
	wsURL, err := buildWebSocketURL(baseURL, "/api/logs/stream", function)
	if err != nil {
		return err
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect log stream: %w", err)
	}
	defer conn.Close()

	go func() {
		<-ctx.Done()
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			// 用户中断或时间到视为正常结束
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("log stream closed: %w", err)
		}

		var msg streamLogMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if function != "" && msg.Function != function {
			continue
		}
		if err := printStreamLogMessage(out, data, &msg); err != nil {
			return err
		}
	}
}

func printStreamLogMessage(out io.Writer, raw []byte, msg *streamLogMessage) error {
	switch viper.GetString("output") {
	case "json":
		fmt.Fprintln(out, string(raw))
		return nil
	case "yaml":
		var v any
		if err := json.Unmarshal(raw, &v); err != nil {
			return err
		}
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
		return nil
	default:
		line := fmt.Sprintf("%s\t%s\t%s", msg.Timestamp.Local().Format("2006-01-02 15:04:05"), msg.Level, msg.Message)
		if msg.Function != "" {
			line += "\tfunction=" + msg.Function
		}
		if msg.InvocationID != "" {
			line += "\tinvocation_id=" + msg.InvocationID
		}
		if msg.Error != "" {
			line += "\terror=" + msg.Error
		}
		fmt.Fprintln(out, line)
		return nil
	}
}

func buildWebSocketURL(baseURL, path, function string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid api url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported api url scheme: %s", u.Scheme)
	}

	u.Path = path
	u.RawQuery = ""
	if function != "" {
		u.RawQuery = url.Values{"function": {function}}.Encode()
	}
	u.Fragment = ""
	return u.String(), nil
}
