package cmd

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetVersionInfo(t *testing.T) {
	origVersion := versionInfo.Version
	origCommit := versionInfo.Commit
	origBuildDate := versionInfo.BuildDate
	defer func() {
		versionInfo.Version = origVersion
		versionInfo.Commit = origCommit
		versionInfo.BuildDate = origBuildDate
	}()

	tests := []struct {
		name      string
		version   string
		commit    string
		buildDate string
	}{
		{name: "set all values", version: "1.0.0", commit: "abc123", buildDate: "2024-01-15"},
		{name: "set dev version", version: "dev", commit: "HEAD", buildDate: "unknown"},
		{name: "set empty values"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			SetVersionInfo(tt.version, tt.commit, tt.buildDate)

			assert.Equal(t, tt.version, versionInfo.Version)
			assert.Equal(t, tt.commit, versionInfo.Commit)
			assert.Equal(t, tt.buildDate, versionInfo.BuildDate)
		})
	}
}

func TestVersionCommand(t *testing.T) {
	orig := versionInfo
	defer func() { versionInfo = orig }()
	SetVersionInfo("1.2.3", "deadbeef", "2026-01-02")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	}()

	require.NoError(t, rootCmd.Execute())
	assert.Contains(t, out.String(), "objmanifest 1.2.3")
	assert.Contains(t, out.String(), "deadbeef")
	assert.Contains(t, out.String(), "2026-01-02")
}

func TestExitError(t *testing.T) {
	tests := []struct {
		name    string
		code    int
		message string
		err     error
		want    string
	}{
		{name: "basic error", code: 1, message: "Something failed", err: assert.AnError, want: "Something failed"},
		{name: "includes exit code", code: 32, message: "Auth failed", err: assert.AnError, want: "exit code 32"},
		{name: "no cause", code: 3, message: "Bad flag", want: "Bad flag (exit code 3)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := exitError(tt.code, tt.message, tt.err)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)

			var ee *ExitError
			require.True(t, errors.As(err, &ee))
			assert.Equal(t, tt.code, ee.Code)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	var stderr bytes.Buffer
	assert.Equal(t, 0, exitCode(&stderr, nil))
	assert.Empty(t, stderr.String())

	assert.Equal(t, 1, exitCode(&stderr, errors.New("plain")))
	assert.Contains(t, stderr.String(), "Error: plain")

	stderr.Reset()
	wrapped := errors.Join(exitError(42, "Setup failed", assert.AnError))
	assert.Equal(t, 42, exitCode(&stderr, wrapped))
	assert.Contains(t, stderr.String(), "Setup failed")
}
