package model

import (
	"time"
)

const (
	AppName = "cfgcollector"

	// DateStampLayout names output files, one per device per UTC day.
	DateStampLayout = "20060102"

	// ConfigFileExt is the extension of collected configuration files.
	ConfigFileExt = ".cfg"
)

// Device is a single entry of the device list.
// nolint:govet // prefer to keep field ordering as is
type Device struct {
	Hostname string `yaml:"hostname"`

	// Optional inventory attributes
	IP       string `yaml:"ip,omitempty"`
	Location string `yaml:"location,omitempty"`
	Type     string `yaml:"type,omitempty"`
}

func (d *Device) AsLogFields() map[string]any {
	return map[string]any{
		"hostname": d.Hostname,
		"ip":       d.IP,
		"location": d.Location,
		"type":     d.Type,
	}
}

// RunSummary holds the outcome counts of one collection pass.
type RunSummary struct {
	RunID     string
	DateStamp string
	StartedAt time.Time
	Total     int
	Success   int
	Failure   int
	Skipped   int
}

func (s *RunSummary) AsLogFields() map[string]any {
	return map[string]any{
		"runID":   s.RunID,
		"total":   s.Total,
		"success": s.Success,
		"failure": s.Failure,
		"skipped": s.Skipped,
	}
}

// Accounted reports whether every device has been counted exactly once.
func (s *RunSummary) Accounted() bool {
	return s.Success+s.Failure+s.Skipped == s.Total
}

// DateStamp formats t as a UTC calendar date.
func DateStamp(t time.Time) string {
	return t.UTC().Format(DateStampLayout)
}

// ConfigFileName returns the output file name for a device on a given date.
func ConfigFileName(hostname, dateStamp string) string {
	return hostname + "_" + dateStamp + ConfigFileExt
}

type Args struct {
	LogLevel    string
	LogFile     string
	ConfigFile  string
	DevicesFile string
	DryRun      bool
	Diagnose    bool

	EnableProfiling bool
}
