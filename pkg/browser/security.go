package browser

import (
	"fmt"
	"net/url"
	"strings"
)

// SecurityValidator enforces the session's URL policy.
type SecurityValidator struct {
	config SecurityConfig
}

// NewSecurityValidator creates a validator for the given policy.
func NewSecurityValidator(config SecurityConfig) *SecurityValidator {
	return &SecurityValidator{config: config}
}

// ValidateURL rejects URLs the policy does not allow.
func (sv *SecurityValidator) ValidateURL(urlStr string) error {
	parsed, err := url.Parse(urlStr)
	if err != nil || parsed.Scheme == "" {
		return &BrowserError{
			Code:    ErrCodeValidation,
			Message: fmt.Sprintf("invalid URL: %s", urlStr),
		}
	}

	switch parsed.Scheme {
	case "http", "https":
	case "file":
		if !sv.config.AllowFileURLs {
			return &BrowserError{
				Code:    ErrCodeSecurity,
				Message: "file:// URLs are not allowed",
			}
		}
	default:
		return &BrowserError{
			Code:    ErrCodeSecurity,
			Message: fmt.Sprintf("scheme not allowed: %s", parsed.Scheme),
		}
	}

	if isLocalhostURL(parsed) && !sv.config.AllowLocalhostURLs {
		return &BrowserError{
			Code:    ErrCodeSecurity,
			Message: "localhost URLs are not allowed",
		}
	}

	host := hostWithoutPort(parsed.Host)
	for _, blocked := range sv.config.BlockedDomains {
		if matchDomain(host, blocked) {
			return &BrowserError{
				Code:    ErrCodeSecurity,
				Message: fmt.Sprintf("domain is blocked: %s", host),
			}
		}
	}

	return nil
}

func isLocalhostURL(parsed *url.URL) bool {
	host := strings.ToLower(hostWithoutPort(parsed.Host))
	return host == "localhost" ||
		host == "::1" ||
		host == "0.0.0.0" ||
		strings.HasPrefix(host, "127.") ||
		strings.HasPrefix(host, "localhost.")
}

func hostWithoutPort(host string) string {
	if idx := strings.LastIndex(host, ":"); idx != -1 && !strings.Contains(host, "]") {
		return host[:idx]
	}
	return host
}

// matchDomain matches a host against a domain pattern, including subdomains.
func matchDomain(host, pattern string) bool {
	host = strings.ToLower(host)
	pattern = strings.ToLower(pattern)
	return host == pattern || strings.HasSuffix(host, "."+pattern)
}
