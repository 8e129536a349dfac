package cmd

import (
	"context"
	"fmt"
	"time"

	"citylayers/internal/data"

	"github.com/spf13/cobra"
)

// sweepCmd 一次性删除过期会话，适合放在 cron 中（服务内的清理被关闭时）
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "删除已过期的会话记录",
	RunE: func(cmd *cobra.Command, args []string) error {
		bc, closeConfig, err := loadConfig(cfgPath)
		if err != nil {
			return err
		}
		defer closeConfig()

		logger := newLogger()
		drv, err := data.NewSqlDriver(bc.Data)
		if err != nil {
			return err
		}
		d, cleanup, err := data.NewData(bc.Data, drv, nil, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()
		n, err := data.NewSessionRepo(d, logger).DeleteExpired(ctx)
		if err != nil {
			return fmt.Errorf("清理会话失败：%w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d expired sessions\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}
