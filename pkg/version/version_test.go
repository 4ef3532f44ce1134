package version

import (
	"encoding/json"
	"regexp"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersion_FollowsSemverOrDev(t *testing.T) {
	// Given: the version package is imported
	// When: accessing Version
	// Then: it is "dev" or a semver string injected by ldflags
	if Version == "dev" {
		return
	}
	semverRegex := regexp.MustCompile(`^v?\d+\.\d+\.\d+(-[a-zA-Z0-9.]+)?$`)
	require.True(t, semverRegex.MatchString(Version), "got: %s", Version)
}

func TestString_ReturnsFormattedString(t *testing.T) {
	// When: calling String()
	str := String()

	// Then: it names the program and every build field
	assert.Contains(t, str, "dsh "+Version)
	assert.Contains(t, str, "commit: "+Commit)
	assert.Contains(t, str, "go: "+GoVersion)
}

func TestShort_ReturnsVersion(t *testing.T) {
	assert.Equal(t, Version, Short())
}

func TestUserAgent(t *testing.T) {
	// When: building the catalogue user agent
	ua := UserAgent()

	// Then: it carries the version and platform
	assert.Equal(t, "dsh-harvester/"+Version+" ("+runtime.GOOS+"/"+runtime.GOARCH+")", ua)
}

func TestGetInfo_IsJSONSerializable(t *testing.T) {
	// Given: the build info
	info := GetInfo()
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.GOARCH, info.Arch)

	// When: serializing it to JSON
	data, err := json.Marshal(info)
	require.NoError(t, err)

	// Then: every field is present
	var parsed map[string]string
	require.NoError(t, json.Unmarshal(data, &parsed))
	for _, key := range []string{"version", "commit", "date", "go_version", "os", "arch"} {
		assert.Contains(t, parsed, key)
	}
}
