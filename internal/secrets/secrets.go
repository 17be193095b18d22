// Package secrets resolves credential settings that point at the
// environment or at a mounted secret file (Docker or Kubernetes secrets).
// Secret values are never logged.
package secrets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/anna-pye/myeventlane-v2-sub001/internal/errors"
	"github.com/anna-pye/myeventlane-v2-sub001/internal/logger"
)

// FilePrefix marks a value as a path to a secret file.
const FilePrefix = "file:"

// maxFileSize bounds secret file reads; secrets are tokens and passwords.
const maxFileSize = 64 * 1024

// Resolve returns the secret a setting refers to:
//
//	file:/run/secrets/smtp_password   file contents without trailing newlines
//	${SMTP_PASSWORD}                  environment variable
//	${SMTP_PASSWORD:-fallback}        environment variable with fallback
//	anything else                     the literal value
func Resolve(value string) (string, error) {
	if path, ok := strings.CutPrefix(value, FilePrefix); ok {
		return ReadFile(path)
	}
	if !strings.Contains(value, "${") {
		return value, nil
	}
	return ExpandString(value)
}

// ResolveAll resolves every field in place. Errors name the setting, not
// the value.
func ResolveAll(fields map[string]*string) error {
	var errs []error
	for name, field := range fields {
		if field == nil || *field == "" {
			continue
		}
		resolved, err := Resolve(*field)
		if err != nil {
			errs = append(errs, errors.New(err).
				Component("secrets").
				Category(errors.CategoryConfiguration).
				Context("setting", name).
				Build())
			continue
		}
		*field = resolved
	}
	return errors.Join(errs...)
}

// ExpandString expands ${VAR} and ${VAR:-default} references. A reference
// without a fallback to an unset variable is an error.
func ExpandString(s string) (string, error) {
	var missing []string
	expanded := os.Expand(s, func(key string) string {
		name, fallback, hasFallback := strings.Cut(key, ":-")
		if value := os.Getenv(name); value != "" {
			return value
		}
		if hasFallback {
			return fallback
		}
		missing = append(missing, name)
		return ""
	})
	if len(missing) > 0 {
		return "", errors.Newf("missing environment variable(s): %s", strings.Join(missing, ", ")).
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	}
	return expanded, nil
}

// ReadFile reads a secret file. Files readable by group or others are
// accepted with a warning.
func ReadFile(path string) (string, error) {
	if path == "" {
		return "", errors.Newf("secret file path is empty").
			Component("secrets").
			Category(errors.CategoryConfiguration).
			Build()
	}
	clean := filepath.Clean(path)

	info, err := os.Stat(clean)
	if err != nil {
		return "", fileError(err, clean)
	}
	if !info.Mode().IsRegular() {
		return "", fileError(errors.NewStd("not a regular file"), clean)
	}
	if info.Size() > maxFileSize {
		return "", fileError(errors.Newf("larger than %d bytes", maxFileSize).Build(), clean)
	}
	if perm := info.Mode().Perm(); perm&0o077 != 0 {
		logger.Global().Module("secrets").Warn("secret file is accessible by group or others",
			logger.String("path", clean),
			logger.String("mode", perm.String()))
	}

	data, err := os.ReadFile(clean)
	if err != nil {
		return "", fileError(err, clean)
	}
	secret := strings.TrimRight(string(data), "\r\n")
	if secret == "" {
		return "", fileError(errors.NewStd("file is empty"), clean)
	}
	return secret, nil
}

func fileError(err error, path string) error {
	return errors.New(err).
		Component("secrets").
		Category(errors.CategoryConfiguration).
		Context("path", path).
		Build()
}
