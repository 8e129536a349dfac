package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Name is the name of the compiled software.
	Name = "citylayers"
	// Version is the version of the compiled software, set by -ldflags.
	Version = "dev"

	cfgPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "citylayers",
	Short: "City Layers 地理问答服务",
	Long:  `citylayers 提供 HTTP 问答服务与会话维护等子命令。`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "conf", "c", "./configs", "config path (directory or file)")
}

// Execute runs the root command
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}
