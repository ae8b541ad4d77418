package config

import (
	"errors"
	"os"
	"path/filepath"
	"time"
)

// Config is the launchman.cfg content. Durations are written as bare
// numbers in the file and Validate scales them into real units:
// capture_timespan and usage_sample_interval are seconds, flush_interval
// and kill_timeout milliseconds.
type Config struct {
	Db                  string        `json:"db"`
	CapturesFolder      string        `json:"captures_folder"`
	CaptureTimespan     time.Duration `json:"capture_timespan"`
	FlushInterval       time.Duration `json:"flush_interval"`
	UsageSampleInterval time.Duration `json:"usage_sample_interval"`
	KillTimeout         time.Duration `json:"kill_timeout"`
}

// usableFolder rejects anything that is not a traversable, writable
// directory.
func usableFolder(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("captures_folder is not a folder")
	}
	if info.Mode()&0200 == 0 {
		return errors.New("captures_folder is not writable")
	}
	if info.Mode()&0100 == 0 {
		return errors.New("captures_folder is not executable")
	}
	return nil
}

// Validate normalizes the raw values and enforces the floors. It mutates
// the receiver and must run exactly once per loaded config.
func (c *Config) Validate() error {
	if c.Db == "" {
		return errors.New("empty db")
	}
	if c.CapturesFolder == "" {
		return errors.New("empty captures_folder")
	}
	if err := usableFolder(c.CapturesFolder); err != nil {
		return err
	}

	abs, err := filepath.Abs(c.CapturesFolder)
	if err != nil {
		return err
	}
	c.CapturesFolder = abs

	c.CaptureTimespan *= time.Second
	c.FlushInterval *= time.Millisecond
	c.UsageSampleInterval *= time.Second
	c.KillTimeout *= time.Millisecond

	if c.CaptureTimespan < time.Minute {
		return errors.New("capture_timespan must be at least 1 minute")
	}
	if c.FlushInterval < time.Millisecond*100 {
		return errors.New("flush_interval must be at least 100 milliseconds")
	}
	if c.UsageSampleInterval < time.Second {
		return errors.New("usage_sample_interval must be at least 1 second")
	}
	if c.KillTimeout == 0 {
		c.KillTimeout = 3000 * time.Millisecond
	}
	if c.KillTimeout < time.Millisecond*100 {
		return errors.New("kill_timeout must be at least 100 milliseconds")
	}
	return nil
}
