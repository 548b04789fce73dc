package adapter

import (
	"fmt"
	"log/slog"
	"os/exec"
	"runtime"
)

// OpenURL opens a URL with the system default handler.
func OpenURL(url string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", "", url)
	default:
		// Linux and other Unix-like systems
		cmd = exec.Command("xdg-open", url)
	}

	logger.Info("opening in browser", "os", runtime.GOOS, "url", url)

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	return nil
}
