// 本文件实现 produce 命令，向 Kafka / Event Hubs 写入一条记录。
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/IBM/sarama"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/oriys/nimbus-functions/internal/config"
	"github.com/oriys/nimbus-functions/internal/triggers"
)

var produceCmd = &cobra.Command{
	Use:   "produce <message>",
	Short: "Write a record to the event stream",
	Long: `Write a record to the Kafka topic consumed by kafka-function.
When EVENTHUB_CONNECTION_STRING is set, SASL/PLAIN over TLS is used
the same way the host connects to the Event Hubs Kafka endpoint.

Examples:
  nimbusfn produce "order created" --brokers localhost:9092 --topic orders
  nimbusfn produce "hello" --brokers myns.servicebus.windows.net:9093 --topic myhub`,
	Args: cobra.ExactArgs(1),
	RunE: runProduce,
}

func init() {
	rootCmd.AddCommand(produceCmd)

	f := produceCmd.Flags()
	f.StringSlice("brokers", []string{"localhost:9092"}, "Broker addresses")
	f.String("topic", "events", "Topic (Event Hub name)")
	f.String("key", "", "Partition key")
	f.String("kafka-version", "2.1.0", "Kafka protocol version")

	for _, name := range []string{"brokers", "topic", "key", "kafka-version"} {
		_ = viper.BindPFlag("stream."+name, f.Lookup(name))
	}
}

// produceConfig 构建与宿主消费端一致的事件流配置。
func produceConfig() config.EventStreamConfig {
	cfg := config.EventStreamConfig{
		Brokers: viper.GetStringSlice("stream.brokers"),
		Topic:   viper.GetString("stream.topic"),
		Version: viper.GetString("stream.kafka-version"),
	}
	if conn := strings.TrimSpace(os.Getenv("EVENTHUB_CONNECTION_STRING")); conn != "" {
		cfg.SASL = config.SASLConfig{Enabled: true, User: "$ConnectionString", Password: conn}
		cfg.TLS = true
	}
	return cfg
}

func runProduce(cmd *cobra.Command, args []string) error {
	cfg := produceConfig()
	sc, err := triggers.SaramaConfig(cfg)
	if err != nil {
		return err
	}
	sc.Producer.Return.Successes = true
	sc.Producer.RequiredAcks = sarama.WaitForAll

	producer, err := sarama.NewSyncProducer(cfg.Brokers, sc)
	if err != nil {
		return fmt.Errorf("failed to create producer: %w", err)
	}
	defer producer.Close()

	msg := &sarama.ProducerMessage{
		Topic: cfg.Topic,
		Value: sarama.StringEncoder(args[0]),
	}
	if key := viper.GetString("stream.key"); key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	partition, offset, err := producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Produced to %s (partition %d, offset %d)\n", cfg.Topic, partition, offset)
	return nil
}
