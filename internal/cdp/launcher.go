// Package cdp discovers Chrome tabs over the DevTools Protocol and runs a
// form monitor for each of them.
package cdp

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
)

// EnvChromePath overrides Chrome executable discovery.
const EnvChromePath = "FORM_TAIL_CHROME"

// ChromeProcess represents a launched Chrome instance.
type ChromeProcess struct {
	Cmd         *exec.Cmd
	Port        string
	UserDataDir string
}

// LaunchOptions controls how LaunchChrome starts the browser.
type LaunchOptions struct {
	Headless bool
	StartURL string
}

// LaunchChrome starts a new Chrome instance with remote debugging enabled.
func LaunchChrome(port string, opts ...LaunchOptions) (*ChromeProcess, error) {
	var o LaunchOptions
	if len(opts) > 0 {
		o = opts[0]
	}

	chromePath := findChrome()
	if chromePath == "" {
		return nil, errors.New("chrome executable not found")
	}

	// A throwaway profile keeps form state from leaking between runs.
	userDataDir, err := os.MkdirTemp("", "form_tail_chrome_*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	cmd := exec.Command(chromePath, chromeArgs(port, userDataDir, o)...)
	if err := cmd.Start(); err != nil {
		_ = os.RemoveAll(userDataDir)
		return nil, fmt.Errorf("failed to start chrome: %w", err)
	}

	return &ChromeProcess{
		Cmd:         cmd,
		Port:        port,
		UserDataDir: userDataDir,
	}, nil
}

func chromeArgs(port, userDataDir string, o LaunchOptions) []string {
	args := []string{
		"--remote-debugging-port=" + port,
		"--user-data-dir=" + userDataDir,
		"--no-first-run",
		"--no-default-browser-check",
		"--disable-features=TranslateUI",
		"--disable-background-networking",
		"--disable-sync",
	}
	if o.Headless {
		args = append(args, "--headless=new", "--disable-gpu")
	}
	if o.StartURL != "" {
		args = append(args, o.StartURL)
	}
	return args
}

// Stop terminates the Chrome process and removes its profile.
func (cp *ChromeProcess) Stop() error {
	if cp.Cmd != nil && cp.Cmd.Process != nil {
		if err := cp.Cmd.Process.Kill(); err != nil {
			return fmt.Errorf("failed to kill chrome: %w", err)
		}
		_ = cp.Cmd.Wait()
	}

	if cp.UserDataDir != "" {
		_ = os.RemoveAll(cp.UserDataDir)
	}
	return nil
}

// PID returns the process ID of the Chrome instance.
func (cp *ChromeProcess) PID() int {
	if cp.Cmd != nil && cp.Cmd.Process != nil {
		return cp.Cmd.Process.Pid
	}
	return 0
}

// findChrome locates the Chrome executable, preferring EnvChromePath.
func findChrome() string {
	if p := os.Getenv(EnvChromePath); p != "" {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	for _, path := range chromePaths(runtime.GOOS) {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	for _, name := range []string{"google-chrome", "chrome", "chromium"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	return ""
}

// chromePaths lists well-known install locations for goos.
func chromePaths(goos string) []string {
	switch goos {
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
			filepath.Join(os.Getenv("HOME"), "Applications/Google Chrome.app/Contents/MacOS/Google Chrome"),
		}
	case "linux":
		return []string{
			"/usr/bin/google-chrome",
			"/usr/bin/google-chrome-stable",
			"/usr/bin/chromium",
			"/usr/bin/chromium-browser",
			"/snap/bin/chromium",
		}
	case "windows":
		return []string{
			filepath.Join(os.Getenv("LOCALAPPDATA"), "Google", "Chrome", "Application", "chrome.exe"),
			filepath.Join(os.Getenv("PROGRAMFILES"), "Google", "Chrome", "Application", "chrome.exe"),
			filepath.Join(os.Getenv("PROGRAMFILES(X86)"), "Google", "Chrome", "Application", "chrome.exe"),
		}
	}
	return nil
}
