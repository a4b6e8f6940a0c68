package cmd

import (
	"github.com/spf13/cobra"

	"ncmc/server"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动 ncmc 服务器",
	Long:  `启动 HTTP 服务器，提供拖放上传、websocket 会话通道、媒体文件和 Web 界面`,
	RunE: func(cmd *cobra.Command, args []string) error {
		sink, resultCache, cleanup, err := openBackends(cmd.Context())
		if err != nil {
			return err
		}
		defer cleanup()

		srv, err := server.New(cfg, sink, resultCache)
		if err != nil {
			return err
		}
		return srv.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
