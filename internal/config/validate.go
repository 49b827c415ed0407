package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ValidationSeverity indicates the severity of a validation issue.
type ValidationSeverity string

const (
	// SeverityError indicates a configuration error that prevents startup.
	SeverityError ValidationSeverity = "error"
	// SeverityWarning indicates a potential issue that won't prevent startup.
	SeverityWarning ValidationSeverity = "warning"
)

// ValidationIssue represents a single validation finding.
type ValidationIssue struct {
	Severity ValidationSeverity `json:"severity"`
	Field    string             `json:"field"`
	Message  string             `json:"message"`
}

// ValidationResult holds the complete validation output.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	File   string            `json:"file"`
	Issues []ValidationIssue `json:"issues,omitempty"`
}

// JSON returns the validation result as formatted JSON.
func (r *ValidationResult) JSON() string {
	data, _ := json.MarshalIndent(r, "", "  ")
	return string(data)
}

func (r *ValidationResult) fail(field, msg string) {
	r.Valid = false
	r.Issues = append(r.Issues, ValidationIssue{Severity: SeverityError, Field: field, Message: msg})
}

func (r *ValidationResult) warn(field, msg string) {
	r.Issues = append(r.Issues, ValidationIssue{Severity: SeverityWarning, Field: field, Message: msg})
}

// ValidateFile loads a YAML config file and validates it.
func ValidateFile(path string) *ValidationResult {
	result := &ValidationResult{Valid: true, File: path}

	info, err := os.Stat(path)
	if err != nil {
		result.fail("file", fmt.Sprintf("cannot access file: %v", err))
		return result
	}
	if info.IsDir() {
		result.fail("file", "path is a directory, expected a file")
		return result
	}

	yamlCfg, err := LoadYAML(path)
	if err != nil {
		result.fail("yaml", fmt.Sprintf("YAML parse error: %v", err))
		return result
	}
	cfg, err := yamlCfg.ToConfig()
	if err != nil {
		result.fail("metrics", err.Error())
		return result
	}
	cfg.ConfigFile = path
	assignAliases(cfg.Tags)
	ValidateConfig(cfg, result)
	return result
}

// ValidateConfig adds the Validate errors and non-fatal warnings of cfg to
// result.
func ValidateConfig(cfg *Config, result *ValidationResult) {
	if err := cfg.Validate(); err != nil {
		msg := err.Error()
		prefix := ErrInvalid.Error() + ":\n  - "
		if errors.Is(err, ErrInvalid) && strings.HasPrefix(msg, prefix) {
			for _, item := range strings.Split(strings.TrimPrefix(msg, prefix), "\n  - ") {
				field, message := parseValidationError(item)
				result.fail(field, message)
			}
		} else {
			result.fail("config", msg)
		}
	}
	addWarnings(cfg, result)
}

// parseValidationError extracts the field from "field must ..." messages.
func parseValidationError(s string) (string, string) {
	s = strings.TrimSpace(s)
	for _, sep := range []string{" must ", " is "} {
		if idx := strings.Index(s, sep); idx > 0 {
			field := s[:idx]
			if !strings.Contains(field, " ") {
				return field, s
			}
		}
	}
	return "config", s
}

// addWarnings flags settings that work but are probably unintended.
func addWarnings(cfg *Config, result *ValidationResult) {
	if len(cfg.Tags) == 0 {
		result.warn("metrics.tags", "no tags configured: births carry only the node control metrics")
	}
	if cfg.TransportKind == TransportMemory {
		result.warn("transport", "memory transport publishes to an in-process broker only")
	}
	if cfg.TransportKind == TransportMQTT && strings.HasPrefix(cfg.Broker, "tcp://") && cfg.Password != "" {
		result.warn("transport.password", "password sent over an unencrypted connection")
	}
	if cfg.TLSInsecureSkipVerify {
		result.warn("transport.tls.insecure_skip_verify", "broker certificate is not verified")
	}
	if cfg.QoS == 0 {
		result.warn("qos", "QoS 0 DATA may be lost without store and forward noticing")
	}
	hasWritable := false
	for _, tc := range cfg.Tags {
		hasWritable = hasWritable || tc.Writable
	}
	if !hasWritable && len(cfg.Tags) > 0 {
		result.warn("metrics.tags", "no writable tags: write commands will be rejected")
	}
}
