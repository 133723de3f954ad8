package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"github.com/portico-labs/portico/internal/browser"
	"github.com/portico-labs/portico/internal/config"
	"github.com/portico-labs/portico/internal/console"
	"github.com/portico-labs/portico/internal/constants"
	"github.com/portico-labs/portico/internal/events"
	"github.com/portico-labs/portico/internal/localfs"
	"github.com/portico-labs/portico/internal/logging"
	"github.com/portico-labs/portico/internal/notify"
	"github.com/portico-labs/portico/internal/protocol"
	"github.com/portico-labs/portico/internal/protocol/rdpx"
	"github.com/portico-labs/portico/internal/protocol/sshx"
	"github.com/portico-labs/portico/internal/session"
	"github.com/portico-labs/portico/internal/store"
	"github.com/portico-labs/portico/internal/transfer"
)

// app is the wired session stack behind the interactive commands: store,
// event bus, backends, controllers, and the console frontend. Commands that
// only touch the store (connections, hostkeys) use openStore instead.
type app struct {
	cfg      *config.Config
	bus      *events.EventBus
	store    *store.Store
	ui       *console.UI
	notifier *notify.Notifier

	shell      *sshx.Backend
	desktop    *rdpx.Backend
	controller *session.Controller
	browser    *browser.Browser
	engine     *transfer.Engine
}

// engineSlot lets the console UI read the transfer engine before the engine
// exists; the UI is constructed first because the engine's collaborators
// want it as their observer.
type engineSlot struct {
	engine *transfer.Engine
}

func (s *engineSlot) Active() (transfer.TransferView, bool) {
	if s.engine == nil {
		return transfer.TransferView{}, false
	}
	return s.engine.Active()
}

// newApp loads config, opens the store, and wires the full session stack.
// Call Close when done.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	st, err := openStore(ctx)
	if err != nil {
		return nil, err
	}

	bus := events.NewEventBus(constants.EventBusDefaultBuffer)
	shellBackend := sshx.NewBackend(bus, st, cfg, promptPassword)
	desktopBackend := rdpx.NewBackend(bus, st, cfg)

	slot := &engineSlot{}
	ui := console.NewUI(slot)

	controller := session.NewController(bus, st, shellBackend, desktopBackend, ui)
	br := browser.NewBrowser(bus, controller, shellBackend, localfs.NewService(), ui)
	engine := transfer.NewEngine(bus, br, cfg, ui)
	slot.engine = engine

	return &app{
		cfg:        cfg,
		bus:        bus,
		store:      st,
		ui:         ui,
		notifier:   notify.NewNotifier(cfg.Notifications, logging.NewLogger("notify", bus)),
		shell:      shellBackend,
		desktop:    desktopBackend,
		controller: controller,
		browser:    br,
		engine:     engine,
	}, nil
}

// Close tears the stack down in dependency order: transfers, browser,
// sessions, then the bus and the store.
func (a *app) Close() {
	ctx := context.Background()
	a.engine.Stop()
	a.browser.Close(ctx)
	a.browser.Stop()
	a.controller.CloseAll(ctx)
	a.ui.Wait()
	a.bus.Close()
	if err := a.store.Close(); err != nil {
		GetLogger().Debug().Err(err).Msg("Store close failed")
	}
}

// openSession opens a shell tab for the connection, walking the user through
// a host-key mismatch when one blocks the handshake.
func (a *app) openSession(ctx context.Context, ref string, size protocol.TerminalSize, acceptNew bool) (string, error) {
	key, err := a.controller.OpenShell(ctx, ref, size)
	if err == nil {
		return key, nil
	}

	mismatch, ok := protocol.AsHostKeyMismatch(err)
	if !ok {
		return "", err
	}

	printHostKeyMismatch(mismatch)
	if !acceptNew && !confirmPrompt("Accept the new host key and reconnect?") {
		return "", err
	}
	return a.controller.AcceptHostKeyAndRetry(ctx, ref, mismatch.Token, size)
}

func printHostKeyMismatch(mismatch *protocol.HostKeyMismatchError) {
	fmt.Println()
	fmt.Printf("WARNING: %s\n", mismatch.Warning())
	fmt.Printf("  Pinned:    %s %s\n", mismatch.StoredKeyType, mismatch.StoredFingerprint)
	fmt.Printf("  Presented: %s %s\n", mismatch.PresentedKeyType, mismatch.PresentedFingerprint)
	fmt.Println()
}

// answerConfirms resolves browser confirm prompts (overwrite, delete) until
// stop is closed. With assumeYes every prompt is accepted silently.
func (a *app) answerConfirms(assumeYes bool, stop <-chan struct{}) {
	ch := a.bus.Subscribe(events.EventBrowserChange)
	go func() {
		defer a.bus.Unsubscribe(events.EventBrowserChange, ch)
		for {
			select {
			case <-stop:
				return
			case e, ok := <-ch:
				if !ok {
					return
				}
				change, ok := e.(*events.BrowserChangeEvent)
				if !ok || change.Reason != "confirm" {
					continue
				}
				view, ok := a.browser.PendingConfirm()
				if !ok {
					continue
				}
				if assumeYes {
					a.browser.ResolveConfirm(true)
					continue
				}
				a.browser.ResolveConfirm(confirmPrompt(view.Message))
			}
		}
	}()
}

// terminalSize picks the shell geometry: explicit flags win, then the real
// terminal size, then the configured default.
func (a *app) terminalSize(cols, rows uint16) protocol.TerminalSize {
	size := protocol.TerminalSize{Cols: a.cfg.TerminalCols, Rows: a.cfg.TerminalRows}
	if w, h, err := term.GetSize(int(os.Stdin.Fd())); err == nil && w > 0 && h > 0 {
		size = protocol.TerminalSize{Cols: uint16(w), Rows: uint16(h)}
	}
	if cols > 0 {
		size.Cols = cols
	}
	if rows > 0 {
		size.Rows = rows
	}
	return size
}

// loadConfig loads and validates the config honoring the --config flag, and
// applies the configured log level unless a verbosity flag already did.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if !verbose && !debug {
		applyLogLevel(cfg.LogLevel)
	}
	return cfg, nil
}

func applyLogLevel(level string) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		logging.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		logging.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		logging.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		logging.SetGlobalLevel(zerolog.ErrorLevel)
	}
}

// openStore opens the connection store honoring the --store flag.
func openStore(ctx context.Context) (*store.Store, error) {
	path := storePath
	if path == "" {
		var err error
		path, err = config.DefaultStorePath()
		if err != nil {
			return nil, fmt.Errorf("failed to determine store path: %w", err)
		}
	}
	st, err := store.Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open connection store: %w", err)
	}
	return st, nil
}

// promptPassword asks for an SSH password on the terminal without echo. Used
// by the backend when key and agent auth are exhausted.
func promptPassword(conn *store.Connection) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("password required for %s@%s but stdin is not a terminal", conn.Username, conn.Host)
	}
	fmt.Fprintf(os.Stderr, "Password for %s@%s: ", conn.Username, conn.Host)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}
