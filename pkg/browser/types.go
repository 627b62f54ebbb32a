// Package browser provides a single persistent Chrome session driven over
// CDP. The session is stateful: cookies, logins, and the current page
// survive between tool calls, so all access is funneled through the
// stateful tool lane.
package browser

import "fmt"

// Error codes
const (
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeSecurity     = "SECURITY_BLOCKED"
	ErrCodeNavigation   = "NAVIGATION_FAILED"
	ErrCodeNoPage       = "NO_ACTIVE_PAGE"
	ErrCodeBrowserCrash = "BROWSER_CRASH"
)

// BrowserError is a typed browser failure.
type BrowserError struct {
	Code    string
	Message string
}

func (e *BrowserError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// SecurityConfig controls which URLs the session may visit.
type SecurityConfig struct {
	AllowFileURLs      bool
	AllowLocalhostURLs bool
	BlockedDomains     []string
}

// PageSnapshot is a compact textual view of the current page.
type PageSnapshot struct {
	URL   string
	Title string
	Text  string
}

// Config configures the browser session.
type Config struct {
	Headless    bool
	NoSandbox   bool
	ChromePath  string
	UserDataDir string
	Security    SecurityConfig
}
