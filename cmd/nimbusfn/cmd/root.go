// Package cmd 包含 nimbusfn 命令行工具的所有命令实现。
// 使用 cobra 构建命令行接口，使用 viper 合并命令行标志、环境变量与配置文件。
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// 全局命令行标志变量
var (
	cfgFile   string // 配置文件路径
	apiURL    string // 函数宿主地址
	outputFmt string // 输出格式（text/json/yaml）
)

var rootCmd = &cobra.Command{
	Use:   "nimbusfn",
	Short: "nimbusfn - function host CLI",
	Long: `nimbusfn 是函数宿主的命令行工具。

使用示例:
  # 调用 HTTP 函数
  nimbusfn invoke simple-function --query name=World

  # 写入一条文档
  nimbusfn invoke write-function --data '{"title": "hello"}'

  # 向任务队列投递消息
  nimbusfn enqueue "write report" --driver redis

  # 向事件流写入记录
  nimbusfn produce "order created" --brokers localhost:9092 --topic orders

  # 实时查看日志
  nimbusfn logs queue-function --follow`,
	SilenceUsage: true,
}

// Execute 执行根命令
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "配置文件路径（默认为 $HOME/.nimbusfn.yaml）")
	rootCmd.PersistentFlags().StringVarP(&apiURL, "api-url", "u", "http://localhost:8080", "函数宿主地址")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "text", "输出格式（text、json、yaml）")

	_ = viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api-url"))
	_ = viper.BindPFlag("output", rootCmd.PersistentFlags().Lookup("output"))
}

// initConfig 按优先级加载配置：命令行标志 > 环境变量 > 配置文件
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		viper.AddConfigPath(home)
		viper.AddConfigPath(".")
		viper.SetConfigType("yaml")
		viper.SetConfigName(".nimbusfn")
	}

	// 环境变量格式：NIMBUSFN_<KEY>，如 NIMBUSFN_API_URL
	viper.SetEnvPrefix("NIMBUSFN")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && cfgFile != "" {
			fmt.Fprintln(os.Stderr, "failed to read config:", err)
		}
	}
}

// commandContext 返回命令的上下文，未设置时使用 Background。
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
