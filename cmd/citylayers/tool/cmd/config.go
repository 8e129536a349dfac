package cmd

import (
	"os"

	"citylayers/internal/conf"

	"github.com/go-kratos/kratos/v2/config"
	"github.com/go-kratos/kratos/v2/config/env"
	"github.com/go-kratos/kratos/v2/config/file"
	"github.com/go-kratos/kratos/v2/log"
)

// envPrefix 环境变量前缀；CITYLAYERS_NEO4J_PASSWORD 可在配置文件中写作 ${NEO4J_PASSWORD}。
const envPrefix = "CITYLAYERS_"

// loadConfig 读取配置文件与环境变量并补齐默认值。
func loadConfig(path string) (*conf.Bootstrap, func(), error) {
	c := config.New(
		config.WithSource(
			file.NewSource(path),
			env.NewSource(envPrefix),
		),
	)
	if err := c.Load(); err != nil {
		return nil, nil, err
	}
	var bc conf.Bootstrap
	if err := c.Scan(&bc); err != nil {
		_ = c.Close()
		return nil, nil, err
	}
	bc.SetDefaults()
	return &bc, func() { _ = c.Close() }, nil
}

func newLogger() log.Logger {
	return log.With(log.NewStdLogger(os.Stdout),
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.name", Name,
		"service.version", Version,
	)
}
