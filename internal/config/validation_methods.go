package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed for %s: %s (value: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

func (ve ValidationErrors) Error() string {
	if len(ve) == 0 {
		return "no validation errors"
	}

	var messages []string
	for _, err := range ve {
		messages = append(messages, err.Error())
	}

	return fmt.Sprintf("configuration validation failed: %s", strings.Join(messages, "; "))
}

// Has checks if ValidationErrors contains any errors
func (ve ValidationErrors) Has() bool {
	return len(ve) > 0
}

// Validate validates the entire configuration
func (c *Config) Validate() error {
	var validationErrors ValidationErrors

	// Validate basic server configuration
	if err := c.validateServer(); err != nil {
		validationErrors = append(validationErrors, err...)
	}

	// Validate sheet and form endpoints
	if err := c.validateSheet(); err != nil {
		validationErrors = append(validationErrors, err...)
	}

	if err := c.validateForm(); err != nil {
		validationErrors = append(validationErrors, err...)
	}

	// Validate layout, submission and export policies
	if err := c.validatePolicies(); err != nil {
		validationErrors = append(validationErrors, err...)
	}

	// Validate storage configuration (if enabled)
	if c.Storage.Enabled {
		if err := c.validateStorage(); err != nil {
			validationErrors = append(validationErrors, err...)
		}
	}

	// Validate cache configuration (if enabled)
	if c.Cache.Enabled {
		if err := c.validateCache(); err != nil {
			validationErrors = append(validationErrors, err...)
		}
	}

	// Validate logging configuration (if present)
	if c.Logging != nil {
		if err := c.validateLogging(); err != nil {
			validationErrors = append(validationErrors, err...)
		}
	}

	// Validate server timeouts (if present)
	if c.Server != nil {
		if err := c.validateServerTimeouts(); err != nil {
			validationErrors = append(validationErrors, err...)
		}
	}

	if validationErrors.Has() {
		return validationErrors
	}

	return nil
}

func (c *Config) validateServer() ValidationErrors {
	var errors ValidationErrors

	// Validate port
	if c.Port == "" {
		errors = append(errors, ValidationError{
			Field:   "port",
			Value:   c.Port,
			Message: "port cannot be empty",
		})
	} else {
		if port, err := strconv.Atoi(c.Port); err != nil {
			errors = append(errors, ValidationError{
				Field:   "port",
				Value:   c.Port,
				Message: "port must be a valid integer",
			})
		} else if port < 1 || port > 65535 {
			errors = append(errors, ValidationError{
				Field:   "port",
				Value:   c.Port,
				Message: "port must be between 1 and 65535",
			})
		}
	}

	// Validate environment
	if c.Environment != "" {
		if !oneOf(c.Environment, "development", "production", "test", "staging") {
			errors = append(errors, ValidationError{
				Field:   "environment",
				Value:   c.Environment,
				Message: "environment must be one of: development, production, test, staging",
			})
		}
	}

	return errors
}

// validateEndpoint checks an http(s) URL that is required outside the test environment
func (c *Config) validateEndpoint(field, raw string) ValidationErrors {
	var errors ValidationErrors

	if raw == "" {
		if c.Environment != "test" {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   raw,
				Message: "URL is required for non-test environments",
			})
		}
		return errors
	}

	parsedURL, err := url.Parse(raw)
	if err != nil {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   raw,
			Message: "must be a valid URL",
		})
		return errors
	}

	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   parsedURL.Scheme,
			Message: "URL must use http or https scheme",
		})
	}

	if parsedURL.Host == "" {
		errors = append(errors, ValidationError{
			Field:   field,
			Value:   raw,
			Message: "URL must include host",
		})
	}

	return errors
}

func (c *Config) validateSheet() ValidationErrors {
	errors := c.validateEndpoint("sheet.url", c.Sheet.URL)

	if c.Sheet.LabelColumn == "" {
		errors = append(errors, ValidationError{
			Field:   "sheet.label_column",
			Value:   c.Sheet.LabelColumn,
			Message: "label column cannot be empty",
		})
	}

	if c.Sheet.ColorColumn == "" {
		errors = append(errors, ValidationError{
			Field:   "sheet.color_column",
			Value:   c.Sheet.ColorColumn,
			Message: "color column cannot be empty",
		})
	}

	if c.Sheet.RefreshInterval < 100*time.Millisecond {
		errors = append(errors, ValidationError{
			Field:   "sheet.refresh_interval",
			Value:   c.Sheet.RefreshInterval,
			Message: "refresh interval must be at least 100ms",
		})
	}

	if c.Sheet.FetchTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "sheet.fetch_timeout",
			Value:   c.Sheet.FetchTimeout,
			Message: "fetch timeout must be greater than 0",
		})
	}

	return errors
}

func (c *Config) validateForm() ValidationErrors {
	errors := c.validateEndpoint("form.url", c.Form.URL)

	if c.Form.LabelField == "" || c.Form.ColorField == "" {
		errors = append(errors, ValidationError{
			Field:   "form.fields",
			Value:   c.Form.LabelField + "," + c.Form.ColorField,
			Message: "form label and color field names cannot be empty",
		})
	}

	if c.Form.Timeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "form.timeout",
			Value:   c.Form.Timeout,
			Message: "form timeout must be greater than 0",
		})
	}

	return errors
}

func (c *Config) validatePolicies() ValidationErrors {
	var errors ValidationErrors

	if !oneOf(c.Layout.Policy, "grid", "drop") {
		errors = append(errors, ValidationError{
			Field:   "layout.policy",
			Value:   c.Layout.Policy,
			Message: "layout policy must be one of: grid, drop",
		})
	}

	if c.Layout.CellSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "layout.cell_size",
			Value:   c.Layout.CellSize,
			Message: "cell size must be a positive integer",
		})
	}

	if c.Layout.MaxDelay <= 0 {
		errors = append(errors, ValidationError{
			Field:   "layout.max_delay",
			Value:   c.Layout.MaxDelay,
			Message: "max delay must be greater than 0",
		})
	}

	if !oneOf(c.Submission.DuplicatePolicy, "show", "block") {
		errors = append(errors, ValidationError{
			Field:   "submission.duplicate_policy",
			Value:   c.Submission.DuplicatePolicy,
			Message: "duplicate policy must be one of: show, block",
		})
	}

	if c.Submission.RateLimit < 0 {
		errors = append(errors, ValidationError{
			Field:   "submission.rate_limit",
			Value:   c.Submission.RateLimit,
			Message: "rate limit cannot be negative",
		})
	}

	if c.Submission.RateLimit > 0 && c.Submission.RateBurst < 1 {
		errors = append(errors, ValidationError{
			Field:   "submission.rate_burst",
			Value:   c.Submission.RateBurst,
			Message: "rate burst must be at least 1 when rate limiting is enabled",
		})
	}

	if !oneOf(c.Export.Capability, "auto", "download", "share") {
		errors = append(errors, ValidationError{
			Field:   "export.capability",
			Value:   c.Export.Capability,
			Message: "export capability must be one of: auto, download, share",
		})
	}

	if c.Export.CardWidth < 64 || c.Export.CardHeight < 64 {
		errors = append(errors, ValidationError{
			Field:   "export.card_size",
			Value:   fmt.Sprintf("%dx%d", c.Export.CardWidth, c.Export.CardHeight),
			Message: "card dimensions must be at least 64x64",
		})
	}

	if c.Export.Scale < 1 || c.Export.Scale > 4 {
		errors = append(errors, ValidationError{
			Field:   "export.scale",
			Value:   c.Export.Scale,
			Message: "card scale must be between 1 and 4",
		})
	}

	if c.Export.ShareURLExpiry < time.Second || c.Export.ShareURLExpiry > 7*24*time.Hour {
		errors = append(errors, ValidationError{
			Field:   "export.share_url_expiry",
			Value:   c.Export.ShareURLExpiry,
			Message: "share URL expiry must be between 1s and 7 days",
		})
	}

	return errors
}

func (c *Config) validateCache() ValidationErrors {
	var errors ValidationErrors

	if c.Cache.Address == "" {
		errors = append(errors, ValidationError{
			Field:   "cache.address",
			Value:   c.Cache.Address,
			Message: "cache address cannot be empty",
		})
	}

	if c.Cache.Database < 0 || c.Cache.Database > 15 {
		errors = append(errors, ValidationError{
			Field:   "cache.database",
			Value:   c.Cache.Database,
			Message: "cache database must be between 0 and 15",
		})
	}

	if c.Cache.PoolSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "cache.pool_size",
			Value:   c.Cache.PoolSize,
			Message: "cache pool size must be a positive integer",
		})
	}

	if c.Cache.DefaultTTL <= 0 {
		errors = append(errors, ValidationError{
			Field:   "cache.default_ttl",
			Value:   c.Cache.DefaultTTL,
			Message: "cache default TTL must be greater than 0",
		})
	}

	return errors
}

func (c *Config) validateStorage() ValidationErrors {
	var errors ValidationErrors

	// Validate endpoint
	if c.Storage.Endpoint == "" {
		errors = append(errors, ValidationError{
			Field:   "storage.endpoint",
			Value:   c.Storage.Endpoint,
			Message: "storage endpoint cannot be empty",
		})
	}

	// Validate bucket name
	if c.Storage.BucketName == "" {
		errors = append(errors, ValidationError{
			Field:   "storage.bucket_name",
			Value:   c.Storage.BucketName,
			Message: "storage bucket name cannot be empty",
		})
	} else if !isValidBucketName(c.Storage.BucketName) {
		errors = append(errors, ValidationError{
			Field:   "storage.bucket_name",
			Value:   c.Storage.BucketName,
			Message: "storage bucket name must be 3-63 characters, lowercase alphanumeric and hyphens only",
		})
	}

	// Validate access credentials for production environments
	if c.Environment == "production" {
		if c.Storage.AccessKeyID == "" || c.Storage.AccessKeyID == "minioadmin" {
			errors = append(errors, ValidationError{
				Field:   "storage.access_key_id",
				Value:   c.Storage.AccessKeyID,
				Message: "storage access key ID must be set for production environment",
			})
		}

		if c.Storage.SecretAccessKey == "" || c.Storage.SecretAccessKey == "minioadmin" {
			errors = append(errors, ValidationError{
				Field:   "storage.secret_access_key",
				Value:   "[REDACTED]",
				Message: "storage secret access key must be set for production environment",
			})
		}
	}

	return errors
}

func (c *Config) validateLogging() ValidationErrors {
	var errors ValidationErrors

	// Validate log level
	if !oneOf(strings.ToLower(c.Logging.Level), "debug", "info", "warn", "error") {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: "logging level must be one of: debug, info, warn, error",
		})
	}

	// Validate log format
	if !oneOf(strings.ToLower(c.Logging.Format), "json", "text") {
		errors = append(errors, ValidationError{
			Field:   "logging.format",
			Value:   c.Logging.Format,
			Message: "logging format must be either 'json' or 'text'",
		})
	}

	return errors
}

func (c *Config) validateServerTimeouts() ValidationErrors {
	var errors ValidationErrors

	// Validate read timeout
	if c.Server.ReadTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "server.read_timeout",
			Value:   c.Server.ReadTimeout,
			Message: "read timeout must be greater than 0",
		})
	} else if c.Server.ReadTimeout > 5*time.Minute {
		errors = append(errors, ValidationError{
			Field:   "server.read_timeout",
			Value:   c.Server.ReadTimeout,
			Message: "read timeout should not exceed 5 minutes",
		})
	}

	// Validate write timeout
	if c.Server.WriteTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "server.write_timeout",
			Value:   c.Server.WriteTimeout,
			Message: "write timeout must be greater than 0",
		})
	} else if c.Server.WriteTimeout > 5*time.Minute {
		errors = append(errors, ValidationError{
			Field:   "server.write_timeout",
			Value:   c.Server.WriteTimeout,
			Message: "write timeout should not exceed 5 minutes",
		})
	}

	if c.Server.ShutdownTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "server.shutdown_timeout",
			Value:   c.Server.ShutdownTimeout,
			Message: "shutdown timeout must be greater than 0",
		})
	}

	// Validate idle timeout
	if c.Server.IdleTimeout <= 0 {
		errors = append(errors, ValidationError{
			Field:   "server.idle_timeout",
			Value:   c.Server.IdleTimeout,
			Message: "idle timeout must be greater than 0",
		})
	}

	return errors
}

// isValidBucketName validates S3/MinIO bucket naming rules
func isValidBucketName(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}

	// Must start and end with lowercase letter or number
	if !isLowerAlphaNum(name[0]) || !isLowerAlphaNum(name[len(name)-1]) {
		return false
	}

	// Check each character
	for i, r := range name {
		if !isLowerAlphaNum(byte(r)) && r != '-' {
			return false
		}

		// No consecutive hyphens
		if i > 0 && r == '-' && name[i-1] == '-' {
			return false
		}
	}

	// Cannot be formatted as IP address (simplified check)
	parts := strings.Split(name, ".")
	if len(parts) == 4 {
		allNumbers := true
		for _, part := range parts {
			if _, err := strconv.Atoi(part); err != nil {
				allNumbers = false
				break
			}
		}
		if allNumbers {
			return false
		}
	}

	return true
}

func oneOf(value string, allowed ...string) bool {
	for _, a := range allowed {
		if value == a {
			return true
		}
	}
	return false
}

func isLowerAlphaNum(b byte) bool {
	return (b >= 'a' && b <= 'z') || (b >= '0' && b <= '9')
}
