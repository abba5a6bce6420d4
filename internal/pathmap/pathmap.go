// Package pathmap turns the command line argument into the path the target
// application should open, including the rewrite needed when the command runs
// on a remote host whose files the local application sees through a mount.
package pathmap

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"
)

// ErrUsage means the command line holds more than one path
var ErrUsage = errors.New("expected at most one path")

// DefaultTemplate mirrors a per-host sshfs mount in the local home directory
const DefaultTemplate = "/home/{{.User}}/ssh/{{.Host}}{{.Path}}"

// Resolve returns the absolute path named by args relative to cwd. No
// argument and "." both mean cwd.
func Resolve(args []string, cwd string) (string, error) {
	switch {
	case len(args) > 1:
		return "", ErrUsage
	case len(args) == 0, args[0] == ".":
		return cwd, nil
	case filepath.IsAbs(args[0]):
		return args[0], nil
	default:
		return filepath.Join(cwd, args[0]), nil
	}
}

// Mapping rewrites paths for remote sessions
type Mapping struct {
	// Env lists variables whose presence marks a remote session
	Env []string
	// Template renders the local view of a remote path from Host, User
	// and Path
	Template string
}

// Vars are the values available to a Mapping template
type Vars struct {
	Host string
	User string
	Path string
}

// Remote reports whether any of the mapping's variables is set
func (m Mapping) Remote(lookup func(string) (string, bool)) bool {
	for _, name := range m.Env {
		if _, ok := lookup(name); ok {
			return true
		}
	}
	return false
}

// Apply renders the template for path
func (m Mapping) Apply(vars Vars) (string, error) {
	text := m.Template
	if text == "" {
		text = DefaultTemplate
	}
	tmpl, err := template.New("remote").Option("missingkey=error").Parse(text)
	if err != nil {
		return "", fmt.Errorf("failed to parse remote path template: %w", err)
	}
	var out strings.Builder
	if err := tmpl.Execute(&out, vars); err != nil {
		return "", fmt.Errorf("failed to render remote path: %w", err)
	}
	return out.String(), nil
}

// Map rewrites path when the process runs in a remote session, using the
// process environment, host name and user
func (m Mapping) Map(path string) (string, error) {
	if !m.Remote(os.LookupEnv) {
		return path, nil
	}
	host, err := os.Hostname()
	if err != nil {
		return "", fmt.Errorf("failed to get host name: %w", err)
	}
	return m.Apply(Vars{
		Host: host,
		User: os.Getenv("USER"),
		Path: path,
	})
}
