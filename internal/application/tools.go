package application

import (
	"fmt"
	"log/slog"
	"os"

	"thirdcoast.systems/sonicstream/internal/config"
	"thirdcoast.systems/sonicstream/internal/toolexec"
)

// NewToolRunner builds the runner every tool wrapper shares. Tools see only
// the configured search path and HOME, never the parent environment.
func NewToolRunner(conf config.ToolsConfig, logger *slog.Logger) *toolexec.Runner {
	runner := toolexec.NewRunner(conf.SearchPath)
	runner.DefaultTimeout = conf.Timeout
	if conf.OutputLimitBytes > 0 {
		runner.MaxOutput = conf.OutputLimitBytes
	}
	if conf.Home != "" {
		runner.BaseEnv = append(runner.BaseEnv, "HOME="+conf.Home)
	}
	runner.BaseEnv = append(runner.BaseEnv, "LANG=C.UTF-8")
	runner.Logger = logger
	return runner
}

func readCookies(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("application: read cookies file: %w", err)
	}
	return string(data), nil
}
