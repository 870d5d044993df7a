package google

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"runtime"
)

// OpenBrowser opens url in the default web browser without waiting for it.
func OpenBrowser(url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "linux", "freebsd", "openbsd":
		cmd = exec.Command("xdg-open", url)
	case "darwin":
		cmd = exec.Command("open", url)
	case "windows":
		cmd = exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to open browser: %w", err)
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

// TerminalPresenter prints the authorization URL to w and, when
// openBrowser is set, also tries to open it. A browser failure is not an
// error since the printed URL still works.
func TerminalPresenter(w io.Writer, openBrowser bool) Presenter {
	return func(_ context.Context, authURL string) error {
		fmt.Fprintf(w, "\nPlease visit this URL to authorize the application:\n\n%s\n\n", authURL)
		if !openBrowser {
			return nil
		}
		if err := OpenBrowser(authURL); err != nil {
			fmt.Fprintf(w, "Could not open a browser automatically (%v); copy the URL above.\n", err)
		}
		return nil
	}
}
