package version

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromBuildSettings(t *testing.T) {
	i := Info{CommitHash: "dev", BuildTime: "unknown", Version: "dev"}
	i.fromBuildSettings([]debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef"},
		{Key: "vcs.time", Value: "2026-03-02T10:00:00Z"},
		{Key: "vcs.modified", Value: "true"},
	})
	assert.Equal(t, "0123456", i.Short())
	assert.Equal(t, "2026-03-02T10:00:00Z", i.BuildTime)
	assert.True(t, i.Modified)
	assert.Contains(t, i.String(), "pulsedesk dev (commit 0123456+dirty")
}

func TestLdflagsWin(t *testing.T) {
	i := Info{CommitHash: "abcdef0123", BuildTime: "yesterday"}
	i.fromBuildSettings([]debug.BuildSetting{
		{Key: "vcs.revision", Value: "0123456789abcdef"},
		{Key: "vcs.time", Value: "2026-03-02T10:00:00Z"},
	})
	assert.Equal(t, "abcdef0", i.Short())
	assert.Equal(t, "yesterday", i.BuildTime)
}
