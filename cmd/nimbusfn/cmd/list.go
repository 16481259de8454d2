// 本文件实现 list 命令，列出宿主注册的函数。
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List registered functions",
	RunE: func(cmd *cobra.Command, args []string) error {
		fns, err := NewClient().ListFunctions(commandContext(cmd))
		if err != nil {
			return err
		}
		return NewPrinter(cmd.OutOrStdout()).PrintFunctions(fns)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show host readiness",
	RunE: func(cmd *cobra.Command, args []string) error {
		status, err := NewClient().Ready(commandContext(cmd))
		if err != nil {
			return err
		}
		p := NewPrinter(cmd.OutOrStdout())
		switch p.format {
		case "json":
			return p.printJSON(status)
		case "yaml":
			return p.printYAML(status)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Host: %s\n", status["status"])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(statusCmd)
}
