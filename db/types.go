package db

import (
	"encoding/json"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

var DefaultConfiguration = Configuration{
	AutoRelaunchOnExit:  pgtype.Bool{Valid: true, Bool: true},
	AutoRelaunchOnCrash: pgtype.Bool{Valid: true, Bool: true},

	AutoRelaunchMaxRetries:      pgtype.Int4{Valid: true, Int32: 3},
	AutoRelaunchMaxRetriesFrame: pgtype.Int4{Valid: true, Int32: 60},
	AutoRelaunchDelay:           pgtype.Int4{Valid: true, Int32: 5000},

	NotifyOnLaunch:   pgtype.Bool{Valid: true, Bool: true},
	NotifyOnStop:     pgtype.Bool{Valid: true, Bool: true},
	NotifyOnCrash:    pgtype.Bool{Valid: true, Bool: true},
	NotifyOnRelaunch: pgtype.Bool{Valid: true, Bool: true},

	RecordUsage:   pgtype.Bool{Valid: true, Bool: true},
	CaptureOutput: pgtype.Bool{Valid: true, Bool: true},
}

// Configuration is stored as jsonb, so every field is nullable. A null
// field means "use the default", which is what the Get* accessors do.
type Configuration struct {
	AutoRelaunchOnExit  pgtype.Bool `json:"auto_relaunch_on_exit"`
	AutoRelaunchOnCrash pgtype.Bool `json:"auto_relaunch_on_crash"`

	// if AutoRelaunchMaxRetries happens within AutoRelaunchMaxRetriesFrame, the session will not be relaunched
	AutoRelaunchMaxRetries      pgtype.Int4 `json:"auto_relaunch_max_retries"`
	AutoRelaunchMaxRetriesFrame pgtype.Int4 `json:"auto_relaunch_max_retries_frame"`
	AutoRelaunchDelay           pgtype.Int4 `json:"auto_relaunch_delay"`

	NotifyOnLaunch   pgtype.Bool `json:"notify_on_launch"`
	NotifyOnStop     pgtype.Bool `json:"notify_on_stop"`
	NotifyOnCrash    pgtype.Bool `json:"notify_on_crash"`
	NotifyOnRelaunch pgtype.Bool `json:"notify_on_relaunch"`

	RecordUsage   pgtype.Bool `json:"record_usage"`
	CaptureOutput pgtype.Bool `json:"capture_output"`
}

func boolOr(v, def pgtype.Bool) bool {
	if v.Valid {
		return v.Bool
	}
	return def.Bool
}

func int4Or(v, def pgtype.Int4) int {
	if v.Valid {
		return int(v.Int32)
	}
	return int(def.Int32)
}

// GetAutoRelaunchOnExit -> bool
// whether a clean exit queues the session for a relaunch, retry budget permitting
func (c *Configuration) GetAutoRelaunchOnExit() bool {
	return boolOr(c.AutoRelaunchOnExit, DefaultConfiguration.AutoRelaunchOnExit)
}

// GetAutoRelaunchOnCrash -> bool
// whether a crash queues the session for a relaunch, retry budget permitting
func (c *Configuration) GetAutoRelaunchOnCrash() bool {
	return boolOr(c.AutoRelaunchOnCrash, DefaultConfiguration.AutoRelaunchOnCrash)
}

// GetAutoRelaunchMaxRetries -> int
// relaunches allowed within one AutoRelaunchMaxRetriesFrame
func (c *Configuration) GetAutoRelaunchMaxRetries() int {
	return int4Or(c.AutoRelaunchMaxRetries, DefaultConfiguration.AutoRelaunchMaxRetries)
}

// GetAutoRelaunchMaxRetriesFrame -> int (seconds)
func (c *Configuration) GetAutoRelaunchMaxRetriesFrame() int {
	return int4Or(c.AutoRelaunchMaxRetriesFrame, DefaultConfiguration.AutoRelaunchMaxRetriesFrame)
}

// GetAutoRelaunchDelay -> time.Duration
func (c *Configuration) GetAutoRelaunchDelay() time.Duration {
	return time.Duration(int4Or(c.AutoRelaunchDelay, DefaultConfiguration.AutoRelaunchDelay)) * time.Millisecond
}

func (c *Configuration) GetNotifyOnLaunch() bool {
	return boolOr(c.NotifyOnLaunch, DefaultConfiguration.NotifyOnLaunch)
}

func (c *Configuration) GetNotifyOnRelaunch() bool {
	return boolOr(c.NotifyOnRelaunch, DefaultConfiguration.NotifyOnRelaunch)
}

func (c *Configuration) GetNotifyOnStop() bool {
	return boolOr(c.NotifyOnStop, DefaultConfiguration.NotifyOnStop)
}

func (c *Configuration) GetNotifyOnCrash() bool {
	return boolOr(c.NotifyOnCrash, DefaultConfiguration.NotifyOnCrash)
}

func (c *Configuration) GetRecordUsage() bool {
	return boolOr(c.RecordUsage, DefaultConfiguration.RecordUsage)
}

func (c *Configuration) GetCaptureOutput() bool {
	return boolOr(c.CaptureOutput, DefaultConfiguration.CaptureOutput)
}

// Equal compares through the accessors, so a null field and an explicit
// default value count as the same setting.
func (c *Configuration) Equal(other Configuration) bool {
	return c.GetAutoRelaunchOnExit() == other.GetAutoRelaunchOnExit() &&
		c.GetAutoRelaunchOnCrash() == other.GetAutoRelaunchOnCrash() &&
		c.GetAutoRelaunchMaxRetries() == other.GetAutoRelaunchMaxRetries() &&
		c.GetAutoRelaunchMaxRetriesFrame() == other.GetAutoRelaunchMaxRetriesFrame() &&
		c.GetAutoRelaunchDelay() == other.GetAutoRelaunchDelay() &&
		c.GetNotifyOnLaunch() == other.GetNotifyOnLaunch() &&
		c.GetNotifyOnRelaunch() == other.GetNotifyOnRelaunch() &&
		c.GetNotifyOnStop() == other.GetNotifyOnStop() &&
		c.GetNotifyOnCrash() == other.GetNotifyOnCrash() &&
		c.GetRecordUsage() == other.GetRecordUsage() &&
		c.GetCaptureOutput() == other.GetCaptureOutput()
}

// init materializes the defaults into default_session_config.json on first
// run. After that the file is the source of truth, so operators can edit it.
func init() {
	const defFileName = "default_session_config.json"

	write := func() {
		marshalled, _ := json.MarshalIndent(DefaultConfiguration, "", "  ")
		_ = os.WriteFile(defFileName, marshalled, 0644)
	}

	stat, err := os.Stat(defFileName)
	switch {
	case os.IsNotExist(err):
		write()
	case err != nil:
		panic(err)
	case stat.IsDir():
		panic(defFileName + " is a directory")
	case stat.Size() == 0:
		_ = os.Remove(defFileName)
		write()
	default:
		f, err := os.Open(defFileName)
		if err != nil {
			panic(err)
		}
		defer f.Close()
		if err = json.NewDecoder(f).Decode(&DefaultConfiguration); err != nil {
			panic(err)
		}
	}
}
