package cmd

import (
	"pitwall/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 pitwall HTTP 服务器",
	Long:  `启动 HTTP 服务器，在 /api/v1 下提供赛段数据、车队无线电和转写接口。`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.Start(loadConfig())
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
