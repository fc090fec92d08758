package buildinfo

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInfoString(t *testing.T) {
	cases := map[string]struct {
		info Info
		want string
	}{
		"stamped":   {Info{Version: "v1.2.3", Commit: "abcdef0", Date: "2025-10-01T09:00:00Z"}, "v1.2.3 (abcdef0, 2025-10-01T09:00:00Z)"},
		"local":     {Info{Version: "dev", Commit: "local"}, "dev (local)"},
		"empty":     {Info{}, "dev"},
		"no commit": {Info{Version: "v2.0.0", Date: "2025-10-01"}, "v2.0.0 (2025-10-01)"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.want, tc.info.String())
		})
	}
}

func TestCurrentTrimsStampedValues(t *testing.T) {
	prevVersion, prevCommit, prevDate := Version, Commit, Date
	t.Cleanup(func() { Version, Commit, Date = prevVersion, prevCommit, prevDate })

	Version, Commit, Date = " v1.0.0\n", "abc123 ", ""
	require.Equal(t, Info{Version: "v1.0.0", Commit: "abc123"}, Current())
}
