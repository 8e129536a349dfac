package cmd

import (
	"os"

	"citylayers/internal/server"
	"citylayers/internal/service"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/spf13/cobra"
)

// serveCmd 启动 HTTP 服务与过期会话清理
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "启动 HTTP 问答服务",
	RunE: func(cmd *cobra.Command, args []string) error {
		bc, closeConfig, err := loadConfig(cfgPath)
		if err != nil {
			return err
		}
		defer closeConfig()

		service.Version = Version
		app, cleanup, err := wireApp(bc.Server, bc.Data, bc.Pipeline, newLogger())
		if err != nil {
			return err
		}
		defer cleanup()
		return app.Run()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func newApp(logger log.Logger, hs *http.Server, sweeper *server.SessionSweeper) *kratos.App {
	id, _ := os.Hostname()
	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(hs, sweeper),
	)
}
