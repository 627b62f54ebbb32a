package browser

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog"
)

// maxPageTextChars bounds extracted page text before it reaches the model.
const maxPageTextChars = 12000

// Session is a lazily-launched Chrome session holding one active page.
// It is not safe for concurrent use; callers serialize access through the
// stateful tool lane.
type Session struct {
	config    Config
	validator *SecurityValidator
	logger    zerolog.Logger

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
	page     *rod.Page
}

// NewSession creates a session. Chrome is not launched until first use.
func NewSession(config Config, logger zerolog.Logger) *Session {
	return &Session{
		config:    config,
		validator: NewSecurityValidator(config.Security),
		logger:    logger.With().Str("component", "browser").Logger(),
	}
}

// ensureBrowser launches Chrome and connects on first use.
func (s *Session) ensureBrowser() error {
	if s.browser != nil {
		return nil
	}

	l := launcher.New().Headless(s.config.Headless)
	if s.config.NoSandbox {
		l = l.NoSandbox(true)
	}
	if s.config.ChromePath != "" {
		l = l.Bin(s.config.ChromePath)
	}
	if s.config.UserDataDir != "" {
		l = l.UserDataDir(s.config.UserDataDir)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return &BrowserError{
			Code:    ErrCodeBrowserCrash,
			Message: fmt.Sprintf("failed to launch Chrome: %v", err),
		}
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Cleanup()
		return &BrowserError{
			Code:    ErrCodeBrowserCrash,
			Message: fmt.Sprintf("failed to connect over CDP: %v", err),
		}
	}

	s.launcher = l
	s.browser = browser
	s.logger.Info().Bool("headless", s.config.Headless).Msg("browser session started")
	return nil
}

// Open navigates to a URL, reusing the current page or creating one, and
// returns a snapshot of the loaded page.
func (s *Session) Open(ctx context.Context, url string) (*PageSnapshot, error) {
	if err := s.validator.ValidateURL(url); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureBrowser(); err != nil {
		return nil, err
	}

	if s.page == nil {
		page, err := s.browser.Page(proto.TargetCreateTarget{})
		if err != nil {
			return nil, &BrowserError{
				Code:    ErrCodeBrowserCrash,
				Message: fmt.Sprintf("failed to create page: %v", err),
			}
		}
		s.page = page
	}

	page := s.page.Context(ctx)
	if err := page.Navigate(url); err != nil {
		return nil, &BrowserError{
			Code:    ErrCodeNavigation,
			Message: fmt.Sprintf("failed to navigate to %s: %v", url, err),
		}
	}
	if err := page.WaitLoad(); err != nil {
		return nil, &BrowserError{
			Code:    ErrCodeNavigation,
			Message: fmt.Sprintf("page load failed: %v", err),
		}
	}
	// Give late scripts a moment to settle before extracting text.
	page.WaitIdle(time.Second)

	return s.snapshotLocked(ctx)
}

// Snapshot returns the current page's URL, title, and visible text.
func (s *Session) Snapshot(ctx context.Context) (*PageSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked(ctx)
}

func (s *Session) snapshotLocked(ctx context.Context) (*PageSnapshot, error) {
	if s.page == nil {
		return nil, &BrowserError{Code: ErrCodeNoPage, Message: "no page is open"}
	}

	page := s.page.Context(ctx)
	info, err := page.Info()
	if err != nil {
		return nil, &BrowserError{
			Code:    ErrCodeBrowserCrash,
			Message: fmt.Sprintf("failed to read page info: %v", err),
		}
	}

	text, err := page.Eval(`() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return nil, &BrowserError{
			Code:    ErrCodeBrowserCrash,
			Message: fmt.Sprintf("failed to extract page text: %v", err),
		}
	}

	body := text.Value.Str()
	if len(body) > maxPageTextChars {
		body = body[:maxPageTextChars] + "\n... (page text truncated)"
	}

	return &PageSnapshot{URL: info.URL, Title: info.Title, Text: body}, nil
}

// Click clicks the first element matching a CSS selector.
func (s *Session) Click(ctx context.Context, selector string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page == nil {
		return &BrowserError{Code: ErrCodeNoPage, Message: "no page is open"}
	}

	page := s.page.Context(ctx)
	el, err := page.Element(selector)
	if err != nil {
		return &BrowserError{
			Code:    ErrCodeValidation,
			Message: fmt.Sprintf("element not found: %s", selector),
		}
	}
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return &BrowserError{
			Code:    ErrCodeNavigation,
			Message: fmt.Sprintf("click failed on %s: %v", selector, err),
		}
	}
	page.WaitIdle(time.Second)
	return nil
}

// Type focuses an element and types text into it.
func (s *Session) Type(ctx context.Context, selector, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page == nil {
		return &BrowserError{Code: ErrCodeNoPage, Message: "no page is open"}
	}

	page := s.page.Context(ctx)
	el, err := page.Element(selector)
	if err != nil {
		return &BrowserError{
			Code:    ErrCodeValidation,
			Message: fmt.Sprintf("element not found: %s", selector),
		}
	}
	if err := el.Input(text); err != nil {
		return &BrowserError{
			Code:    ErrCodeNavigation,
			Message: fmt.Sprintf("input failed on %s: %v", selector, err),
		}
	}
	return nil
}

// Screenshot captures the current viewport as base64 PNG.
func (s *Session) Screenshot(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page == nil {
		return "", &BrowserError{Code: ErrCodeNoPage, Message: "no page is open"}
	}

	data, err := s.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return "", &BrowserError{
			Code:    ErrCodeBrowserCrash,
			Message: fmt.Sprintf("screenshot failed: %v", err),
		}
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Close shuts down the page, browser, and Chrome process.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.page != nil {
		_ = s.page.Close()
		s.page = nil
	}
	if s.browser != nil {
		_ = s.browser.Close()
		s.browser = nil
	}
	if s.launcher != nil {
		s.launcher.Cleanup()
		s.launcher = nil
	}
}
