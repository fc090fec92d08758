// Package buildinfo exposes release metadata stamped in at link time:
//
//	-X 'github.com/m3rciful/fingames/core/buildinfo.Version=v1.2.3'
//	-X 'github.com/m3rciful/fingames/core/buildinfo.Commit=abcdef0'
//	-X 'github.com/m3rciful/fingames/core/buildinfo.Date=2025-10-01T09:00:00Z'
package buildinfo

import "strings"

var (
	// Version is the release tag of the bot.
	Version = "dev"
	// Commit is the source revision.
	Commit = "local"
	// Date is the build timestamp in RFC3339; empty for local builds.
	Date = ""
)

// Info is a snapshot of the stamped values.
type Info struct {
	Version string
	Commit  string
	Date    string
}

// Current returns the stamped values with surrounding whitespace removed.
func Current() Info {
	return Info{
		Version: strings.TrimSpace(Version),
		Commit:  strings.TrimSpace(Commit),
		Date:    strings.TrimSpace(Date),
	}
}

// String renders "v1.2.3 (abcdef0, 2025-10-01T09:00:00Z)", leaving out
// empty parts.
func (i Info) String() string {
	version := i.Version
	if version == "" {
		version = "dev"
	}
	var extra []string
	for _, v := range []string{i.Commit, i.Date} {
		if v != "" {
			extra = append(extra, v)
		}
	}
	if len(extra) == 0 {
		return version
	}
	return version + " (" + strings.Join(extra, ", ") + ")"
}
