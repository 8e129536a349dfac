package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"citylayers/internal/service"

	"github.com/spf13/cobra"
)

var (
	waitURL      string
	waitTimeout  time.Duration
	requireGraph bool
)

// waitreadyCmd waits until citylayers reports healthy status
var waitreadyCmd = &cobra.Command{
	Use:   "waitready",
	Short: "等待 citylayers /status 就绪（部署编排用）",
	RunE: func(cmd *cobra.Command, args []string) error {
		deadline := time.Now().Add(waitTimeout)
		for time.Now().Before(deadline) {
			if ready(cmd.Context()) {
				return nil
			}
			time.Sleep(2 * time.Second)
		}
		return fmt.Errorf("waitready 超时：%s", waitURL)
	},
}

func init() {
	waitreadyCmd.Flags().StringVar(&waitURL, "url", "http://127.0.0.1:8000/status", "就绪探针 URL")
	waitreadyCmd.Flags().DurationVar(&waitTimeout, "timeout", 10*time.Minute, "等待超时")
	waitreadyCmd.Flags().BoolVar(&requireGraph, "require-graph", true, "图数据库连通后才算就绪")
	rootCmd.AddCommand(waitreadyCmd)
}

func ready(ctx context.Context) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, waitURL, nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var status service.StatusReply
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false
	}
	return status.DbStatus == "ok" && (!requireGraph || status.GraphStatus == "ok")
}
