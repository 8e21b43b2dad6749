// Package paths resolves the application-writable base directory that disk
// caches are created under.
package paths

import (
	"errors"
	"path/filepath"

	gap "github.com/muesli/go-app-paths"
)

// Resolver returns an application-writable root directory.
type Resolver interface {
	BaseDir() (string, error)
}

// Dir is a Resolver that always returns the same directory.
type Dir string

// BaseDir returns d as an absolute path.
func (d Dir) BaseDir() (string, error) {
	if d == "" {
		return "", errors.New("base dir is empty")
	}
	return filepath.Abs(string(d))
}

// App resolves the per-user data directory for an application, following
// platform conventions (XDG on Linux, Application Support on macOS,
// LocalAppData on Windows).
type App struct {
	scope *gap.Scope
}

// NewApp returns a Resolver for the named application's user data directory.
func NewApp(name string) *App {
	return &App{scope: gap.NewScope(gap.User, name)}
}

// BaseDir returns the writable data directory for the application.
func (a *App) BaseDir() (string, error) {
	// DataPath joins its argument onto the writable data dir.
	return a.scope.DataPath("")
}

// ConfigDirs returns the application's configuration directories, most
// specific first.
func (a *App) ConfigDirs() ([]string, error) {
	return a.scope.ConfigDirs()
}
