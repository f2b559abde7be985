package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// ValidationResult contains the results of configuration validation.
// Separates errors (blocking issues) from warnings (non-blocking issues).
type ValidationResult struct {
	// Errors contains validation failures that should block startup
	Errors []string

	// Warnings contains validation issues that should be logged but not block startup
	Warnings []string
}

// IsValid returns true if there are no validation errors.
// Warnings do not affect validity.
func (vr *ValidationResult) IsValid() bool {
	return len(vr.Errors) == 0
}

// HasWarnings returns true if there are any validation warnings.
func (vr *ValidationResult) HasWarnings() bool {
	return len(vr.Warnings) > 0
}

// AddError adds an error message to the validation result.
func (vr *ValidationResult) AddError(msg string) {
	vr.Errors = append(vr.Errors, msg)
}

// AddWarning adds a warning message to the validation result.
func (vr *ValidationResult) AddWarning(msg string) {
	vr.Warnings = append(vr.Warnings, msg)
}

// Merge combines multiple validation results into a single result.
func (vr *ValidationResult) Merge(other ValidationResult) {
	vr.Errors = append(vr.Errors, other.Errors...)
	vr.Warnings = append(vr.Warnings, other.Warnings...)
}

// Err returns the errors joined into one error, or nil when valid.
func (vr *ValidationResult) Err() error {
	if vr.IsValid() {
		return nil
	}
	return errors.New("invalid configuration: " + strings.Join(vr.Errors, "; "))
}

// ValidateURL checks that raw is an absolute http or https URL.
func ValidateURL(field, raw string) ValidationResult {
	result := ValidationResult{}

	if raw == "" {
		result.AddError(fmt.Sprintf("%s cannot be empty", field))
		return result
	}

	u, err := url.Parse(raw)
	if err != nil {
		result.AddError(fmt.Sprintf("%s is not a valid URL: %v", field, err))
		return result
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		result.AddError(fmt.Sprintf("%s must use http or https, got %q", field, raw))
		return result
	}
	if u.Host == "" {
		result.AddError(fmt.Sprintf("%s has no host: %q", field, raw))
	}

	return result
}

// ValidateAPIURL checks the registry API root. A missing /v2 suffix is only a warning.
func ValidateAPIURL(raw string) ValidationResult {
	result := ValidateURL("registry.api_url", raw)
	if result.IsValid() && !strings.HasSuffix(strings.TrimRight(raw, "/"), "/v2") {
		result.AddWarning(fmt.Sprintf("registry.api_url %q does not end in /v2", raw))
	}
	return result
}

// ValidatePort checks that port is a usable TCP port.
func ValidatePort(port int) ValidationResult {
	result := ValidationResult{}
	if port < 1 || port > 65535 {
		result.AddError(fmt.Sprintf("server.port %d is out of range: must be between 1 and 65535", port))
	}
	return result
}

// ValidateStaticDir checks the UI directory. Problems are warnings so the API
// can still start without a UI.
func ValidateStaticDir(path string) ValidationResult {
	result := ValidationResult{}

	if path == "" {
		return result
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			result.AddWarning(fmt.Sprintf("static directory does not exist: %s", path))
		} else {
			result.AddWarning(fmt.Sprintf("cannot access static directory %s: %v", path, err))
		}
		return result
	}

	if !info.IsDir() {
		result.AddWarning(fmt.Sprintf("static path is not a directory: %s", path))
	}

	return result
}

// Validate validates the entire configuration.
func (c *Config) Validate() ValidationResult {
	result := ValidationResult{}

	result.Merge(ValidateAPIURL(c.Registry.APIURL))
	if c.Registry.URL != "" {
		result.Merge(ValidateURL("registry.url", c.Registry.URL))
	}
	if strings.TrimSpace(c.Registry.Name) == "" {
		result.AddWarning("registry.name is empty")
	}
	if c.Registry.Timeout <= 0 {
		result.AddError(fmt.Sprintf("registry.timeout must be positive, got %v", c.Registry.Timeout))
	} else if c.Registry.Timeout < time.Second {
		result.AddWarning(fmt.Sprintf("registry.timeout %v is below one second and will be rounded up", c.Registry.Timeout))
	}
	if c.Registry.Insecure {
		result.AddWarning("registry.insecure disables TLS certificate verification")
	}

	result.Merge(ValidatePort(c.Server.Port))
	if c.Server.RateLimit < 0 {
		result.AddError(fmt.Sprintf("server.rate_limit cannot be negative, got %d", c.Server.RateLimit))
	}
	result.Merge(ValidateStaticDir(c.Server.StaticDir))

	if c.Refresh.Interval < 0 {
		result.AddError(fmt.Sprintf("refresh.interval cannot be negative, got %v", c.Refresh.Interval))
	}
	if c.Refresh.Concurrency < 0 {
		result.AddError(fmt.Sprintf("refresh.concurrency cannot be negative, got %d", c.Refresh.Concurrency))
	} else if c.Refresh.Concurrency == 0 {
		result.AddWarning("refresh.concurrency is 0: tag fetches are unbounded")
	}
	if c.Refresh.DetailLimit < 1 {
		result.AddError(fmt.Sprintf("refresh.detail_limit must be at least 1, got %d", c.Refresh.DetailLimit))
	}

	return result
}
