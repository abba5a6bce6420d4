package commands

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/BurntSushi/xgb/xproto"
	"github.com/stretchr/testify/require"

	"github.com/bryanchriswhite/emacshere/internal/app"
	"github.com/bryanchriswhite/emacshere/internal/pathmap"
	"github.com/bryanchriswhite/emacshere/internal/window"
	"github.com/bryanchriswhite/emacshere/internal/window/xfake"
)

const target xproto.Window = 0x10

// localConfig writes a config file that never treats the test run as an SSH
// session
func localConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("remote:\n  env: [EMACSHERE_TEST_NEVER_SET]\n"), 0644))
	return path
}

func execute(t *testing.T, cfgPath string, x *xfake.Conn, args ...string) (string, error) {
	t.Helper()
	orig := dial
	dial = func(string) (window.Conn, error) {
		return x, nil
	}
	t.Cleanup(func() { dial = orig })

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append(args, "--config", cfgPath))
	err := rootCmd.Execute()
	return out.String(), err
}

func editor(aware bool) *xfake.Conn {
	x := xfake.New()
	x.AddClient(xfake.RootWindow, target, "emacs", true, 3)
	if aware {
		x.SetCard32(target, "XdndAware", xproto.AtomAtom, 5)
		data := []uint32{uint32(target), 1, 0, 0, 0}
		for _, typ := range []string{"XdndStatus", "XdndFinished"} {
			x.Queue(xproto.ClientMessageEvent{
				Format: 32,
				Window: target,
				Type:   x.Atom(typ),
				Data:   xproto.ClientMessageDataUnionData32New(data),
			})
		}
	}
	return x
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected int
	}{
		{name: "success", err: nil, expected: 0},
		{name: "usage", err: &usageError{err: pathmap.ErrUsage}, expected: 2},
		{name: "wrapped usage", err: fmt.Errorf("parse: %w", &usageError{err: errors.New("bad flag")}), expected: 2},
		{name: "no window", err: window.ErrNoMatchingWindow, expected: 1},
		{name: "other", err: errors.New("boom"), expected: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.expected, exitCode(tt.err))
		})
	}
}

func TestOpenPath(t *testing.T) {
	x := editor(true)
	_, err := execute(t, localConfig(t), x, "/tmp/notes.org")
	require.NoError(t, err)

	var types []xproto.Atom
	for _, s := range x.Sent() {
		if msg, ok := s.Event.(xproto.ClientMessageEvent); ok {
			types = append(types, msg.Type)
		}
	}
	require.Equal(t, []xproto.Atom{
		x.Atom("XdndEnter"), x.Atom("XdndPosition"), x.Atom("XdndDrop"),
	}, types)
}

func TestOpenTooManyPaths(t *testing.T) {
	x := editor(true)
	_, err := execute(t, localConfig(t), x, "/a", "/b")
	require.ErrorIs(t, err, pathmap.ErrUsage)
	require.Equal(t, 2, exitCode(err))
	require.Empty(t, x.Log())
}

func TestOpenUnknownFlag(t *testing.T) {
	_, err := execute(t, localConfig(t), editor(true), "--no-such-flag")
	require.Equal(t, 2, exitCode(err))
}

func TestOpenFailures(t *testing.T) {
	_, err := execute(t, localConfig(t), xfake.New(), "/tmp/x")
	require.ErrorIs(t, err, window.ErrNoMatchingWindow)
	require.Equal(t, 1, exitCode(err))

	_, err = execute(t, localConfig(t), editor(false), "/tmp/x")
	require.Error(t, err)
	require.Equal(t, 1, exitCode(err))
}

func TestCandidatesJSON(t *testing.T) {
	x := xfake.New()
	x.AddClient(xfake.RootWindow, 0x10, "emacs", true, 3)
	x.AddClient(xfake.RootWindow, 0x20, "emacs", false, 9)

	out, err := execute(t, localConfig(t), x, "candidates", "--format", "json")
	require.NoError(t, err)

	var listing app.Listing
	require.NoError(t, json.Unmarshal([]byte(out), &listing))
	require.Len(t, listing.Windows, 2)
	require.True(t, listing.Windows[0].Best)
	require.False(t, listing.Windows[1].Best)
	require.Empty(t, x.Sent())
}

func TestCandidatesTable(t *testing.T) {
	x := xfake.New()
	x.AddClient(xfake.RootWindow, 0x10, "emacs", true, 3)

	out, err := execute(t, localConfig(t), x, "candidates", "--format", "table")
	require.NoError(t, err)
	require.Contains(t, out, "WINDOW")
	require.Contains(t, out, "0x10")

	out, err = execute(t, localConfig(t), xfake.New(), "candidates", "--format", "table")
	require.NoError(t, err)
	require.Equal(t, "No emacs windows found\n", out)
}

func TestCandidatesBadFormat(t *testing.T) {
	_, err := execute(t, localConfig(t), xfake.New(), "candidates", "--format", "xml")
	require.Equal(t, 2, exitCode(err))
}

func TestConfigInitAndPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "emacshere", "config.yaml")

	out, err := execute(t, path, xfake.New(), "config", "path")
	require.NoError(t, err)
	require.Equal(t, path+"\n", out)

	_, err = execute(t, path, xfake.New(), "config", "init")
	require.NoError(t, err)
	require.FileExists(t, path)

	_, err = execute(t, path, xfake.New(), "config", "init")
	require.ErrorContains(t, err, "already exists")
}

func TestConfigShowAppliesFlags(t *testing.T) {
	out, err := execute(t, localConfig(t), xfake.New(), "config", "show", "--format", "json", "--class", "gvim")
	require.NoError(t, err)

	var shown map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	require.Equal(t, "gvim", shown["target_class"])

	// Later tests expect the default class.
	require.NoError(t, rootCmd.PersistentFlags().Set("class", ""))
	rootCmd.PersistentFlags().Lookup("class").Changed = false
}
