package launcher

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSignalString(t *testing.T) {
	assert.Equal(t, "Stop", Stop.String())
	assert.Equal(t, "Launch", Launch.String())
	assert.Equal(t, "Relaunch", Relaunch.String())
	assert.Equal(t, "Deleted", Deleted.String())
	assert.Equal(t, "Refresh", Refresh.String())
	assert.Equal(t, "Unknown Signal (42)", Signal(42).String())
}

func TestCurrentPidGuard(t *testing.T) {
	sr := &SessionRunner{}
	assert.Zero(t, sr.CurrentPid())

	sr.setCurrentPid(100)
	assert.Equal(t, int32(100), sr.CurrentPid())

	// A stale exit must not clear the pid of the relaunched application.
	sr.setCurrentPid(200)
	sr.clearCurrentPid(100)
	assert.Equal(t, int32(200), sr.CurrentPid())

	sr.clearCurrentPid(200)
	assert.Zero(t, sr.CurrentPid())
}

func TestResolvePath(t *testing.T) {
	dir := t.TempDir()

	bin := filepath.Join(dir, "app")
	assert.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\n"), 0755))

	resolved, err := ResolvePath(bin)
	assert.NoError(t, err)
	assert.Equal(t, bin, resolved)

	_, err = ResolvePath(dir)
	assert.Error(t, err)

	_, err = ResolvePath(filepath.Join(dir, "no-such-binary-here"))
	assert.Error(t, err)

	if runtime.GOOS != "windows" {
		plain := filepath.Join(dir, "notes.txt")
		assert.NoError(t, os.WriteFile(plain, []byte("hello"), 0644))
		_, err = ResolvePath(plain)
		assert.Error(t, err)
	}
}
