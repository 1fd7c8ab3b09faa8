// internal/browser/session/executable.go
package session

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"

	"github.com/mitchellh/go-homedir"
)

// Source names where an executable was found.
type Source string

const (
	SourceOverride Source = "override"
	SourceCache    Source = "cache"
	SourceSystem   Source = "system"
	SourcePath     Source = "path"
)

// Resolution is the outcome of executable discovery.
type Resolution struct {
	Path   string
	Source Source
}

// Locator finds a Chromium-family executable. The zero value uses the real
// filesystem; fields exist so tests can substitute them.
type Locator struct {
	// Override is an explicit path. When set it is the only candidate.
	Override string
	Home     string
	GOOS     string

	LookPath func(file string) (string, error)
	Stat     func(name string) (os.FileInfo, error)
	Glob     func(pattern string) ([]string, error)
}

// cachePatterns are the browser caches of common automation tools, relative to home.
var cachePatterns = map[string][]string{
	"linux": {
		".cache/ms-playwright/chromium-*/chrome-linux/chrome",
		".cache/ms-playwright/chromium_headless_shell-*/chrome-linux/headless_shell",
		".cache/puppeteer/chrome/linux-*/chrome-linux64/chrome",
		".cache/rod/browser/chromium-*/chrome",
	},
	"darwin": {
		"Library/Caches/ms-playwright/chromium-*/chrome-mac/Chromium.app/Contents/MacOS/Chromium",
		".cache/puppeteer/chrome/mac*-*/chrome-mac*/Google Chrome for Testing.app/Contents/MacOS/Google Chrome for Testing",
		".cache/rod/browser/chromium-*/Chromium.app/Contents/MacOS/Chromium",
	},
	"windows": {
		"AppData/Local/ms-playwright/chromium-*/chrome-win/chrome.exe",
		".cache/puppeteer/chrome/win64-*/chrome-win64/chrome.exe",
		".cache/rod/browser/chromium-*/chrome.exe",
	},
}

var systemPaths = map[string][]string{
	"linux": {
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium",
		"/usr/bin/chromium-browser",
		"/snap/bin/chromium",
		"/opt/google/chrome/chrome",
	},
	"darwin": {
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		"/Applications/Chromium.app/Contents/MacOS/Chromium",
		"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
	},
	"windows": {
		`C:\Program Files\Google\Chrome\Application\chrome.exe`,
		`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
		`C:\Program Files (x86)\Microsoft\Edge\Application\msedge.exe`,
	},
}

var pathNames = []string{
	"google-chrome-stable",
	"google-chrome",
	"chromium",
	"chromium-browser",
	"chrome",
	"headless_shell",
}

// ResolveExecutable locates a browser with the default Locator.
func ResolveExecutable(override string) (Resolution, error) {
	return Locator{Override: override}.Resolve()
}

// Resolve checks the override, then automation-tool caches, then well-known
// install locations, then $PATH.
func (l Locator) Resolve() (Resolution, error) {
	l = l.withDefaults()

	if l.Override != "" {
		path, err := homedir.Expand(l.Override)
		if err != nil {
			return Resolution{}, &LaunchError{Executable: l.Override, Stage: "resolve", Err: err}
		}
		if !l.isFile(path) {
			return Resolution{}, &LaunchError{Executable: path, Stage: "resolve", Err: os.ErrNotExist}
		}
		return Resolution{Path: path, Source: SourceOverride}, nil
	}

	if l.Home != "" {
		for _, pattern := range cachePatterns[l.GOOS] {
			matches, err := l.Glob(filepath.Join(l.Home, filepath.FromSlash(pattern)))
			if err != nil || len(matches) == 0 {
				continue
			}
			// Newest revision first.
			sort.Sort(sort.Reverse(sort.StringSlice(matches)))
			for _, m := range matches {
				if l.isFile(m) {
					return Resolution{Path: m, Source: SourceCache}, nil
				}
			}
		}
	}

	for _, p := range systemPaths[l.GOOS] {
		if l.isFile(p) {
			return Resolution{Path: p, Source: SourceSystem}, nil
		}
	}

	for _, name := range pathNames {
		if p, err := l.LookPath(name); err == nil {
			return Resolution{Path: p, Source: SourcePath}, nil
		}
	}

	return Resolution{}, &LaunchError{
		Stage: "resolve",
		Err:   errors.New("no Chromium-family browser found; set browser.executable_path or CHROME_PATH"),
	}
}

func (l Locator) withDefaults() Locator {
	if l.GOOS == "" {
		l.GOOS = runtime.GOOS
	}
	if l.LookPath == nil {
		l.LookPath = exec.LookPath
	}
	if l.Stat == nil {
		l.Stat = os.Stat
	}
	if l.Glob == nil {
		l.Glob = filepath.Glob
	}
	if l.Home == "" {
		if home, err := homedir.Dir(); err == nil {
			l.Home = home
		}
	}
	return l
}

func (l Locator) isFile(path string) bool {
	info, err := l.Stat(path)
	return err == nil && !info.IsDir()
}

func (r Resolution) String() string {
	return fmt.Sprintf("%s (%s)", r.Path, r.Source)
}
