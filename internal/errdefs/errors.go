// Package errdefs defines the error taxonomy shared by the wiring runtime.
//
// Errors fall into three classes. Configuration errors are detected before any
// service is instantiated and always name the offending ids. Startup errors wrap
// a failing factory or init function. Access errors are raised when a caller
// reads an instance that does not exist yet. Shutdown failures are never
// returned; they are only logged by the lifecycle runner.
package errdefs

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Lifecycle sentinels.
var (
	ErrAlreadyStarted   = errors.New("backend already started")
	ErrNotStarted       = errors.New("backend not started")
	ErrStopped          = errors.New("backend already stopped")
	ErrServerNotStarted = errors.New("server not started yet")
)

// ConfigError reports an invalid declaration: bad feature tag or version,
// unresolved extension point ownership, a dependency cycle, a reference to an
// undeclared service or a scope violation.
type ConfigError struct {
	IDs     []string
	Message string
}

// NewConfigError builds a ConfigError naming ids. The ids are sorted so the
// message is stable.
func NewConfigError(msg string, ids ...string) *ConfigError {
	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)
	return &ConfigError{IDs: sorted, Message: msg}
}

// Configf is NewConfigError with a formatted message.
func Configf(ids []string, format string, args ...any) *ConfigError {
	return NewConfigError(fmt.Sprintf(format, args...), ids...)
}

func (e *ConfigError) Error() string {
	if len(e.IDs) == 0 {
		return "configuration error: " + e.Message
	}
	return fmt.Sprintf("configuration error: %s [%s]", e.Message, strings.Join(e.IDs, ", "))
}

// StartupError wraps a failure raised by a factory or an init function.
type StartupError struct {
	Stage    string // "factory", "init", "startup-hook"
	ID       string
	PluginID string
	Err      error
}

func (e *StartupError) Error() string {
	target := e.ID
	if e.PluginID != "" {
		target = fmt.Sprintf("%s (plugin %s)", e.ID, e.PluginID)
	}
	return fmt.Sprintf("startup failed in %s %s: %v", e.Stage, target, e.Err)
}

func (e *StartupError) Unwrap() error { return e.Err }

// AccessError is returned when an instance is read before it exists.
type AccessError struct {
	ID       string
	PluginID string
	Reason   string
}

func (e *AccessError) Error() string {
	if e.PluginID != "" {
		return fmt.Sprintf("cannot access service %s for plugin %s: %s", e.ID, e.PluginID, e.Reason)
	}
	return fmt.Sprintf("cannot access service %s: %s", e.ID, e.Reason)
}

// IsConfig reports whether err is, or wraps, a ConfigError.
func IsConfig(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

// IsStartup reports whether err is, or wraps, a StartupError.
func IsStartup(err error) bool {
	var se *StartupError
	return errors.As(err, &se)
}

// IsAccess reports whether err is, or wraps, an AccessError.
func IsAccess(err error) bool {
	var ae *AccessError
	return errors.As(err, &ae)
}
