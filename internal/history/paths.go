package history

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Supported browsers for DefaultPath.
const (
	BrowserChrome   = "chrome"
	BrowserChromium = "chromium"
	BrowserBrave    = "brave"
	BrowserEdge     = "edge"
)

// DefaultPath returns the OS-conventional History file of browser/profile
// for the running platform.
func DefaultPath(browser, profile string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("history: home dir: %w", err)
	}
	return defaultPath(runtime.GOOS, home, os.Getenv("LOCALAPPDATA"), browser, profile)
}

func defaultPath(goos, home, localAppData, browser, profile string) (string, error) {
	if browser == "" {
		browser = BrowserChrome
	}
	if profile == "" {
		profile = "Default"
	}

	var parts []string
	switch goos {
	case "linux", "freebsd", "openbsd":
		dirs := map[string][]string{
			BrowserChrome:   {".config", "google-chrome"},
			BrowserChromium: {".config", "chromium"},
			BrowserBrave:    {".config", "BraveSoftware", "Brave-Browser"},
			BrowserEdge:     {".config", "microsoft-edge"},
		}
		parts = append([]string{home}, dirs[browser]...)
		if len(parts) == 1 {
			return "", fmt.Errorf("history: unsupported browser %q", browser)
		}
	case "darwin":
		dirs := map[string][]string{
			BrowserChrome:   {"Google", "Chrome"},
			BrowserChromium: {"Chromium"},
			BrowserBrave:    {"BraveSoftware", "Brave-Browser"},
			BrowserEdge:     {"Microsoft Edge"},
		}
		d, ok := dirs[browser]
		if !ok {
			return "", fmt.Errorf("history: unsupported browser %q", browser)
		}
		parts = append([]string{home, "Library", "Application Support"}, d...)
	case "windows":
		if localAppData == "" {
			localAppData = filepath.Join(home, "AppData", "Local")
		}
		dirs := map[string][]string{
			BrowserChrome:   {"Google", "Chrome", "User Data"},
			BrowserChromium: {"Chromium", "User Data"},
			BrowserBrave:    {"BraveSoftware", "Brave-Browser", "User Data"},
			BrowserEdge:     {"Microsoft", "Edge", "User Data"},
		}
		d, ok := dirs[browser]
		if !ok {
			return "", fmt.Errorf("history: unsupported browser %q", browser)
		}
		parts = append([]string{localAppData}, d...)
	default:
		return "", fmt.Errorf("history: unsupported platform %q", goos)
	}

	parts = append(parts, profile, "History")
	return filepath.Join(parts...), nil
}
