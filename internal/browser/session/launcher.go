// internal/browser/session/launcher.go
package session

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const devToolsPrefix = "DevTools listening on "

// baseFlags are passed to every launch, in this order.
var baseFlags = []string{
	"--remote-debugging-port=0",
	"--remote-debugging-address=127.0.0.1",
	"--no-first-run",
	"--no-default-browser-check",
	"--no-sandbox",
	"--disable-setuid-sandbox",
	"--disable-dev-shm-usage",
	"--disable-background-timer-throttling",
	"--disable-backgrounding-occluded-windows",
	"--disable-renderer-backgrounding",
	"--disable-blink-features=AutomationControlled",
	"--disable-features=Translate,OptimizationHints,MediaRouter",
	"--password-store=basic",
	"--use-mock-keychain",
	"--mute-audio",
}

// buildFlags returns the deterministic command line for a launch.
func buildFlags(opts Options, userDataDir string) []string {
	flags := make([]string, 0, len(baseFlags)+8+len(opts.ExtraArgs))
	flags = append(flags, baseFlags...)
	flags = append(flags, "--user-data-dir="+userDataDir)
	if opts.WindowWidth > 0 && opts.WindowHeight > 0 {
		flags = append(flags, "--window-size="+strconv.Itoa(opts.WindowWidth)+","+strconv.Itoa(opts.WindowHeight))
	}
	if opts.Headless {
		flags = append(flags, "--headless=new", "--hide-scrollbars")
	}
	if opts.UserAgent != "" {
		flags = append(flags, "--user-agent="+opts.UserAgent)
	}
	if opts.proxyServer != "" {
		flags = append(flags, "--proxy-server="+opts.proxyServer)
	}
	if len(opts.Languages) > 0 {
		flags = append(flags, "--lang="+opts.Languages[0])
	}
	flags = append(flags, opts.ExtraArgs...)
	return append(flags, "about:blank")
}

// parseDevToolsLine extracts the browser websocket URL from a stderr line.
func parseDevToolsLine(line string) (string, bool) {
	idx := strings.Index(line, devToolsPrefix)
	if idx < 0 {
		return "", false
	}
	wsURL := strings.TrimSpace(line[idx+len(devToolsPrefix):])
	if !strings.HasPrefix(wsURL, "ws://") {
		return "", false
	}
	return wsURL, true
}

// process is a running browser and the bookkeeping needed to tear it down.
type process struct {
	cmd         *exec.Cmd
	userDataDir string
	wsURL       string

	exited   chan struct{}
	exitErr  error
	killOnce sync.Once
}

// Exited reports whether the process has terminated.
func (p *process) Exited() bool {
	select {
	case <-p.exited:
		return true
	default:
		return false
	}
}

// kill terminates the process and waits up to grace for it to be reaped.
func (p *process) kill(grace time.Duration) error {
	var err error
	p.killOnce.Do(func() {
		if p.Exited() {
			return
		}
		if killErr := p.cmd.Process.Kill(); killErr != nil && !errors.Is(killErr, os.ErrProcessDone) {
			err = killErr
		}
		select {
		case <-p.exited:
		case <-time.After(grace):
			err = errors.Join(err, fmt.Errorf("browser process %d did not exit within %s", p.cmd.Process.Pid, grace))
		}
	})
	return err
}

// startProcess launches the executable and waits for the DevTools endpoint.
func startProcess(ctx context.Context, exe string, flags []string, userDataDir string, timeout time.Duration, logger *zap.Logger) (*process, error) {
	cmd := exec.Command(exe, flags...)
	cmd.Stdout = io.Discard
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, &LaunchError{Executable: exe, Stage: "start", Err: err}
	}
	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Executable: exe, Stage: "start", Err: err}
	}

	p := &process{cmd: cmd, userDataDir: userDataDir, exited: make(chan struct{})}
	endpoint := make(chan string, 1)

	go func() {
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		found := false
		for scanner.Scan() {
			line := scanner.Text()
			if !found {
				if wsURL, ok := parseDevToolsLine(line); ok {
					found = true
					endpoint <- wsURL
					continue
				}
			}
			logger.Debug("browser stderr", zap.String("line", line))
		}
		// Wait must follow the final read from the pipe.
		p.exitErr = cmd.Wait()
		close(p.exited)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case wsURL := <-endpoint:
		p.wsURL = wsURL
		return p, nil
	case <-p.exited:
		return nil, &LaunchError{Executable: exe, Stage: "devtools", Err: fmt.Errorf("browser exited before exposing DevTools: %v", p.exitErr)}
	case <-timer.C:
		_ = p.kill(5 * time.Second)
		return nil, &LaunchError{Executable: exe, Stage: "devtools", Err: fmt.Errorf("no DevTools endpoint within %s", timeout)}
	case <-ctx.Done():
		_ = p.kill(5 * time.Second)
		return nil, &LaunchError{Executable: exe, Stage: "devtools", Err: ctx.Err()}
	}
}
