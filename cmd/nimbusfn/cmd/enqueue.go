// 本文件实现 enqueue 命令，向队列触发器投递任务消息。
package cmd

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var enqueueCmd = &cobra.Command{
	Use:   "enqueue <message>",
	Short: "Send a task message to the queue trigger",
	Long: `Send a task message to the queue consumed by queue-function.

Examples:
  # NATS JetStream
  nimbusfn enqueue "write report" --driver nats --nats-url nats://localhost:4222

  # Redis list
  nimbusfn enqueue "write report" --driver redis --redis-addr localhost:6379`,
	Args: cobra.ExactArgs(1),
	RunE: runEnqueue,
}

func init() {
	rootCmd.AddCommand(enqueueCmd)

	f := enqueueCmd.Flags()
	f.String("driver", "nats", "Queue driver (nats, redis)")
	f.String("nats-url", nats.DefaultURL, "NATS server URL")
	f.String("subject", "tasks.new", "JetStream subject")
	f.String("redis-addr", "localhost:6379", "Redis address")
	f.String("redis-password", "", "Redis password")
	f.String("queue", "tasks", "Redis list key")

	for _, name := range []string{"driver", "nats-url", "subject", "redis-addr", "redis-password", "queue"} {
		_ = viper.BindPFlag("queue."+name, f.Lookup(name))
	}
}

func runEnqueue(cmd *cobra.Command, args []string) error {
	ctx := commandContext(cmd)
	message := args[0]

	switch driver := viper.GetString("queue.driver"); driver {
	case "nats":
		nc, err := nats.Connect(viper.GetString("queue.nats-url"), nats.Timeout(5*time.Second))
		if err != nil {
			return fmt.Errorf("failed to connect to NATS: %w", err)
		}
		defer nc.Close()

		js, err := nc.JetStream()
		if err != nil {
			return fmt.Errorf("failed to create JetStream context: %w", err)
		}
		id := uuid.NewString()
		ack, err := js.Publish(viper.GetString("queue.subject"), []byte(message), nats.MsgId(id), nats.Context(ctx))
		if err != nil {
			return fmt.Errorf("failed to publish: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Enqueued %s to %s (stream %s, seq %d)\n", id, viper.GetString("queue.subject"), ack.Stream, ack.Sequence)
		return nil

	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     viper.GetString("queue.redis-addr"),
			Password: viper.GetString("queue.redis-password"),
		})
		defer client.Close()

		n, err := client.RPush(ctx, viper.GetString("queue.queue"), message).Result()
		if err != nil {
			return fmt.Errorf("failed to push: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Enqueued to %s (length %d)\n", viper.GetString("queue.queue"), n)
		return nil

	default:
		return fmt.Errorf("unknown queue driver %q", driver)
	}
}
