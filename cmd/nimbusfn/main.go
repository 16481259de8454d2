// Package main 是 nimbusfn 命令行工具的入口点。
// nimbusfn 用于调用函数宿主上的函数、向队列与事件流投递消息以及实时查看日志。
package main

import (
	"os"

	"github.com/oriys/nimbus-functions/cmd/nimbusfn/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
