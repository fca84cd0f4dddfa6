// Package browser exposes a single go-rod controlled tab as the browser_use capability.
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// Browser owns one lazily launched Chrome process and its active tab.
type Browser struct {
	cfg       Config
	validator *SecurityValidator

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
	closed   bool
}

// New creates a Browser. Chrome is not started until the first action that needs it.
func New(cfg Config) *Browser {
	def := DefaultConfig()
	if cfg.NavigateTimeout <= 0 {
		cfg.NavigateTimeout = def.NavigateTimeout
	}
	if cfg.MaxTextLength <= 0 {
		cfg.MaxTextLength = def.MaxTextLength
	}
	return &Browser{
		cfg:       cfg,
		validator: NewSecurityValidator(cfg.Security),
	}
}

var errClosed = errors.New("browser is closed")

// ensurePage launches Chrome and opens a blank tab on first use. Callers hold b.mu.
func (b *Browser) ensurePage(ctx context.Context) (*rod.Page, error) {
	if b.closed {
		return nil, errClosed
	}
	if b.page != nil {
		return b.page, nil
	}

	l := launcher.New().Headless(b.cfg.Headless)
	if b.cfg.NoSandbox {
		l = l.NoSandbox(true)
	}
	if b.cfg.ChromePath != "" {
		l = l.Bin(b.cfg.ChromePath)
	}

	controlURL, err := l.Context(ctx).Launch()
	if err != nil {
		return nil, &BrowserError{Code: ErrCodeBrowserCrash, Message: fmt.Sprintf("Failed to launch Chrome: %v", err)}
	}

	rb := rod.New().ControlURL(controlURL)
	if err := rb.Connect(); err != nil {
		l.Kill()
		return nil, &BrowserError{Code: ErrCodeBrowserCrash, Message: fmt.Sprintf("Failed to connect to CDP: %v", err)}
	}

	page, err := rb.Page(proto.TargetCreateTarget{URL: "about:blank"})
	if err != nil {
		_ = rb.Close()
		l.Kill()
		return nil, &BrowserError{Code: ErrCodeBrowserCrash, Message: fmt.Sprintf("Failed to open tab: %v", err)}
	}

	log.Info().Bool("headless", b.cfg.Headless).Msg("Browser launched")

	b.launcher = l
	b.browser = rb
	b.page = page
	return page, nil
}

// Navigate opens url in the active tab and waits for the load event.
func (b *Browser) Navigate(ctx context.Context, url string) (*State, error) {
	if err := b.validator.ValidateURL(url); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	page, err := b.ensurePage(ctx)
	if err != nil {
		return nil, err
	}

	p := page.Context(ctx).Timeout(b.cfg.NavigateTimeout)
	if err := p.Navigate(url); err != nil {
		return nil, &BrowserError{Code: ErrCodeNavigation, Message: fmt.Sprintf("Failed to navigate to %s: %v", url, err)}
	}
	if err := p.WaitLoad(); err != nil {
		return nil, &BrowserError{Code: ErrCodeNavigation, Message: fmt.Sprintf("Page load timeout: %v", err)}
	}
	return pageState(page)
}

// Back navigates one entry back in history.
func (b *Browser) Back(ctx context.Context) (*State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.page == nil {
		return nil, &BrowserError{Code: ErrCodeNavigation, Message: "No page is open"}
	}
	p := b.page.Context(ctx).Timeout(b.cfg.NavigateTimeout)
	if err := p.NavigateBack(); err != nil {
		return nil, &BrowserError{Code: ErrCodeNavigation, Message: fmt.Sprintf("Failed to go back: %v", err)}
	}
	_ = p.WaitLoad()
	return pageState(b.page)
}

// Text returns the visible text of the active tab, capped at MaxTextLength runes.
func (b *Browser) Text(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.page == nil {
		return "", &BrowserError{Code: ErrCodeNavigation, Message: "No page is open"}
	}
	res, err := b.page.Context(ctx).Eval(`() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return "", &BrowserError{Code: ErrCodeScriptExecution, Message: fmt.Sprintf("Failed to extract text: %v", err)}
	}
	return truncateRunes(res.Value.String(), b.cfg.MaxTextLength), nil
}

// State reports the active tab. It never launches Chrome; before the first
// navigation it returns an empty State.
func (b *Browser) State(ctx context.Context) (*State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.page == nil {
		return &State{}, nil
	}
	return pageState(b.page.Context(ctx))
}

// ContextPrompt renders the planning prompt for the current browser state.
func (b *Browser) ContextPrompt(ctx context.Context) (string, error) {
	state, err := b.State(ctx)
	if err != nil {
		return "", err
	}
	return NextStepPrompt(state), nil
}

// Close shuts Chrome down. It is safe to call more than once.
func (b *Browser) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	var err error
	if b.browser != nil {
		if cerr := b.browser.Close(); cerr != nil {
			err = fmt.Errorf("failed to close browser: %w", cerr)
		}
	}
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher.Cleanup()
	}
	b.page, b.browser, b.launcher = nil, nil, nil
	return err
}

func pageState(page *rod.Page) (*State, error) {
	info, err := page.Info()
	if err != nil {
		return nil, &BrowserError{Code: ErrCodeScriptExecution, Message: fmt.Sprintf("Failed to read page info: %v", err)}
	}
	return &State{URL: info.URL, Title: info.Title}, nil
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	return string(r[:max]) + "\n... [truncated]"
}

