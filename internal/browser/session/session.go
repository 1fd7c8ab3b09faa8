// internal/browser/session/session.go
package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	proxynet "github.com/xkilldash9x/adscope/internal/browser/network"
	"github.com/xkilldash9x/adscope/internal/config"
)

// State is the lifecycle position of a Session.
type State int32

const (
	StateLaunching State = iota
	StateConnected
	StateDisconnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateLaunching:
		return "launching"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

const (
	pingTimeout  = 3 * time.Second
	killGrace    = 5 * time.Second
	closeTimeout = 5 * time.Second
)

// Options configures a launch.
type Options struct {
	ExecutablePath   string
	Headless         bool
	WindowWidth      int
	WindowHeight     int
	LaunchTimeout    time.Duration
	UserDataRoot     string
	ExtraArgs        []string
	OperationTimeout time.Duration
	EventBuffer      int

	// BlockResources fails font and media requests. BlockImages adds images.
	BlockResources bool
	BlockImages    bool

	// UserAgent and Languages are applied at the process level so that requests
	// made before stealth patches land already carry them.
	UserAgent string
	Languages []string

	// Proxy chains browser traffic through an upstream proxy when non-nil.
	Proxy *proxynet.UpstreamProxy

	proxyServer string
}

// OptionsFromConfig builds launch options from the application config.
func OptionsFromConfig(cfg config.Interface) Options {
	browser := cfg.Browser()
	netCfg := cfg.Network()
	opts := Options{
		ExecutablePath:   browser.ExecutablePath,
		Headless:         browser.Headless,
		WindowWidth:      browser.WindowWidth,
		WindowHeight:     browser.WindowHeight,
		LaunchTimeout:    browser.LaunchTimeout,
		UserDataRoot:     browser.UserDataRoot,
		ExtraArgs:        append([]string(nil), browser.ExtraArgs...),
		OperationTimeout: browser.OperationTimeout,
		EventBuffer:      netCfg.EventBuffer,
		BlockResources:   netCfg.BlockResources,
	}
	if stealthCfg := cfg.Stealth(); stealthCfg.Enabled {
		opts.UserAgent = stealthCfg.Profile.UserAgent
		opts.Languages = append([]string(nil), stealthCfg.Profile.Languages...)
	}
	if p := netCfg.Proxy; p.Enabled {
		opts.Proxy = &proxynet.UpstreamProxy{Address: p.Address, Username: p.Username, Password: p.Password}
	}
	return opts
}

// Session is one browser process and its protocol connection. It is owned by
// a single crawl; its methods are safe for concurrent use but operations are
// expected to be issued from one controlling goroutine.
type Session struct {
	id         string
	opts       Options
	logger     *zap.Logger
	executable Resolution

	proc      *process
	forwarder *proxynet.Forwarder
	events    *eventHub
	lifecycle *lifecycle
	http      devtoolsClient

	// mu guards the connection fields.
	mu          sync.Mutex
	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc
	targetID    target.ID

	state     atomic.Int32
	closeOnce sync.Once
	closeErr  error
}

// Launch resolves an executable, starts it and attaches to its first page.
func Launch(ctx context.Context, opts Options, logger *zap.Logger) (*Session, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.LaunchTimeout <= 0 {
		opts.LaunchTimeout = 30 * time.Second
	}

	s := &Session{
		id:        uuid.NewString(),
		opts:      opts,
		lifecycle: newLifecycle(),
	}
	s.logger = logger.Named("session").With(zap.String("session_id", s.id))
	s.state.Store(int32(StateLaunching))
	s.http = newDevtoolsClient()

	exe, err := ResolveExecutable(opts.ExecutablePath)
	if err != nil {
		return nil, err
	}
	s.executable = exe

	if opts.Proxy != nil {
		fwd, err := proxynet.NewForwarder(*opts.Proxy, s.logger)
		if err != nil {
			return nil, &LaunchError{Executable: exe.Path, Stage: "proxy", Err: err}
		}
		if err := fwd.Start(); err != nil {
			return nil, &LaunchError{Executable: exe.Path, Stage: "proxy", Err: err}
		}
		s.forwarder = fwd
		s.opts.proxyServer = "http://" + fwd.Addr()
	}

	userDataDir, err := os.MkdirTemp(opts.UserDataRoot, "adscope-profile-")
	if err != nil {
		s.releaseResources()
		return nil, &LaunchError{Executable: exe.Path, Stage: "profile", Err: err}
	}

	flags := buildFlags(s.opts, userDataDir)
	s.logger.Info("Launching browser.",
		zap.String("executable", exe.Path),
		zap.String("source", string(exe.Source)),
		zap.Bool("headless", opts.Headless))

	proc, err := startProcess(ctx, exe.Path, flags, userDataDir, opts.LaunchTimeout, s.logger.Named("process"))
	if err != nil {
		_ = os.RemoveAll(userDataDir)
		s.releaseResources()
		return nil, err
	}
	s.proc = proc
	s.events = newEventHub(opts.EventBuffer, s.logger)

	if err := s.connect(ctx); err != nil {
		_ = s.Close()
		return nil, &LaunchError{Executable: exe.Path, Stage: "attach", Err: err}
	}

	s.logger.Info("Browser session connected.", zap.String("devtools", proc.wsURL), zap.String("target", string(s.currentTarget())))
	return s, nil
}

// ID identifies the session in logs.
func (s *Session) ID() string { return s.id }

// Executable is the resolved browser executable.
func (s *Session) Executable() Resolution { return s.executable }

// State reports the current lifecycle state.
func (s *Session) State() State { return State(s.state.Load()) }

// Alive reports whether the process is running and the connection is up.
func (s *Session) Alive() bool {
	return s.State() == StateConnected && s.proc != nil && !s.proc.Exited()
}

// Ping round-trips a trivial evaluation.
func (s *Session) Ping(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	var one int
	if err := s.Evaluate(pingCtx, "1", &one); err != nil {
		if errors.Is(err, ErrClosed) {
			return err
		}
		s.markDisconnected("ping failed")
		return fmt.Errorf("%w: ping: %v", ErrConnectionLost, err)
	}
	return nil
}

// Subscribe feeds raw network events to ch until the returned function is
// called. The caller owns ch; it is never closed by the session.
func (s *Session) Subscribe(ch chan<- NetworkEvent) (unsubscribe func()) {
	if s.events == nil {
		return func() {}
	}
	return s.events.subscribe(ch)
}

// DroppedEvents is the number of network events lost to a full queue.
func (s *Session) DroppedEvents() int64 {
	if s.events == nil {
		return 0
	}
	return s.events.Dropped()
}

// Run executes raw CDP actions against the page target.
func (s *Session) Run(ctx context.Context, actions ...chromedp.Action) error {
	return s.runActions(ctx, actions...)
}

// runActions binds ctx to the live tab and runs actions there.
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	tabCtx, err := s.tab()
	if err != nil {
		return err
	}
	runCtx, cancel := CombineContext(tabCtx, ctx)
	defer cancel()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return s.classify(ctx, err)
	}
	return nil
}

// tab returns the live tab context or the reason there is none.
func (s *Session) tab() (context.Context, error) {
	switch s.State() {
	case StateClosed:
		return nil, ErrClosed
	case StateDisconnected:
		return nil, ErrConnectionLost
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tabCtx == nil {
		return nil, ErrConnectionLost
	}
	return s.tabCtx, nil
}

// classify maps a failed protocol call onto the session's error vocabulary.
func (s *Session) classify(ctx context.Context, err error) error {
	if s.State() == StateClosed {
		return ErrClosed
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if s.proc != nil && s.proc.Exited() {
		s.markDisconnected("process exited")
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	if errors.Is(err, ErrConnectionLost) || looksLikeConnectionError(err) {
		s.markDisconnected(err.Error())
		return fmt.Errorf("%w: %v", ErrConnectionLost, err)
	}
	return err
}

func (s *Session) markDisconnected(reason string) {
	if s.state.CompareAndSwap(int32(StateConnected), int32(StateDisconnected)) {
		s.logger.Warn("Browser connection lost.", zap.String("reason", reason))
	}
}

func (s *Session) currentTarget() target.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.targetID
}

// connect attaches a fresh protocol connection to the existing process.
func (s *Session) connect(ctx context.Context) error {
	targetID, err := s.pageTarget(ctx)
	if err != nil {
		s.logger.Debug("Page target lookup failed; a new target will be created.", zap.Error(err))
	}

	allocCtx, allocCancel := chromedp.NewRemoteAllocator(context.Background(), s.proc.wsURL, chromedp.NoModifyURL)

	ctxOpts := []chromedp.ContextOption{
		chromedp.WithLogf(s.logger.Sugar().Debugf),
		chromedp.WithErrorf(s.logger.Sugar().Debugf),
	}
	if targetID != "" {
		ctxOpts = append(ctxOpts, chromedp.WithTargetID(targetID))
	}
	tabCtx, tabCancel := chromedp.NewContext(allocCtx, ctxOpts...)
	chromedp.ListenTarget(tabCtx, s.onEvent)

	// The first Run allocates the connection and must not carry a deadline,
	// so it is bounded from outside.
	attached := make(chan error, 1)
	go func() {
		attached <- chromedp.Run(tabCtx, s.enableDomains()...)
	}()

	timer := time.NewTimer(s.opts.LaunchTimeout)
	defer timer.Stop()
	select {
	case err = <-attached:
	case <-timer.C:
		err = fmt.Errorf("attach timed out after %s", s.opts.LaunchTimeout)
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		tabCancel()
		allocCancel()
		return err
	}

	if targetID == "" {
		if c := chromedp.FromContext(tabCtx); c != nil && c.Target != nil {
			targetID = c.Target.TargetID
		}
	}

	s.mu.Lock()
	s.allocCancel = allocCancel
	s.tabCtx = tabCtx
	s.tabCancel = tabCancel
	s.targetID = targetID
	s.mu.Unlock()
	s.state.Store(int32(StateConnected))

	go s.watch(tabCtx)
	return nil
}

// watch flips the session to Disconnected when the process or connection dies.
func (s *Session) watch(tabCtx context.Context) {
	var lost <-chan struct{}
	if c := chromedp.FromContext(tabCtx); c != nil && c.Browser != nil {
		lost = c.Browser.LostConnection
	}
	select {
	case <-s.proc.exited:
		s.markDisconnected("browser process exited")
	case <-lost:
		s.markDisconnected("protocol connection dropped")
	case <-tabCtx.Done():
	}
}

// disconnect tears down the current connection, leaving the process running.
func (s *Session) disconnect() {
	s.mu.Lock()
	tabCancel, allocCancel := s.tabCancel, s.allocCancel
	s.tabCtx, s.tabCancel, s.allocCancel = nil, nil, nil
	s.mu.Unlock()

	if tabCancel != nil {
		tabCancel()
	}
	if allocCancel != nil {
		allocCancel()
	}
}

// Reconnect replaces the connection with a fresh one to the same process.
// It fails with ErrConnectionLost when the process itself is gone.
func (s *Session) Reconnect(ctx context.Context) error {
	if s.State() == StateClosed {
		return ErrClosed
	}
	if s.proc == nil || s.proc.Exited() {
		s.markDisconnected("process exited")
		return fmt.Errorf("%w: browser process is not running", ErrConnectionLost)
	}

	s.logger.Info("Reconnecting to browser.")
	s.state.Store(int32(StateDisconnected))
	s.disconnect()

	if err := s.connect(ctx); err != nil {
		return fmt.Errorf("%w: reconnect: %v", ErrConnectionLost, err)
	}
	s.logger.Info("Reconnected.", zap.String("target", string(s.currentTarget())))
	return nil
}

// Close shuts the connection, the process and the profile directory, in that
// order. It is idempotent and tolerates any of them already being gone.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		s.state.Store(int32(StateClosed))
		s.disconnect()

		var errs []error
		if s.proc != nil {
			if err := s.proc.kill(killGrace); err != nil {
				errs = append(errs, err)
			}
			if err := os.RemoveAll(s.proc.userDataDir); err != nil {
				errs = append(errs, fmt.Errorf("remove profile dir: %w", err))
			}
		}
		if s.events != nil {
			s.events.close()
		}
		s.releaseResources()

		s.closeErr = errors.Join(errs...)
		if s.closeErr != nil {
			s.logger.Warn("Session closed with errors.", zap.Error(s.closeErr))
		} else {
			s.logger.Debug("Session closed.")
		}
	})
	return s.closeErr
}

func (s *Session) releaseResources() {
	if s.forwarder != nil {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		_ = s.forwarder.Close(ctx)
	}
}

// pageTarget asks the DevTools HTTP endpoint for the first page target.
func (s *Session) pageTarget(ctx context.Context) (target.ID, error) {
	u, err := url.Parse(s.proc.wsURL)
	if err != nil {
		return "", err
	}
	lookupCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	return s.http.firstPage(lookupCtx, u.Host)
}
