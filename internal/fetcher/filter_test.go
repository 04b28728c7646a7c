package fetcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeList(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestFilterEmptyListsFollowPolicy(t *testing.T) {
	allow := NewDomainFilter("", "", PolicyAllow, time.Minute)
	defer allow.Close()
	assert.True(t, allow.Allowed("example.com"))

	deny := NewDomainFilter("", "", PolicyDeny, time.Minute)
	defer deny.Close()
	assert.False(t, deny.Allowed("example.com"))
}

func TestFilterDenyWins(t *testing.T) {
	dir := t.TempDir()
	allowFile := writeList(t, dir, "allow.txt", "example.com\n")
	denyFile := writeList(t, dir, "deny.txt", "example.com\n")

	f := NewDomainFilter(allowFile, denyFile, PolicyAllow, time.Minute)
	defer f.Close()
	assert.False(t, f.Allowed("example.com"))
}

func TestFilterAllowListIsExclusive(t *testing.T) {
	dir := t.TempDir()
	allowFile := writeList(t, dir, "allow.txt", "good.com\n")

	f := NewDomainFilter(allowFile, "", PolicyAllow, time.Minute)
	defer f.Close()
	assert.True(t, f.Allowed("good.com"))
	// A non-empty allow list denies everything else regardless of policy.
	assert.False(t, f.Allowed("other.com"))
}

func TestFilterDenyOnlyAdmitsTheRest(t *testing.T) {
	dir := t.TempDir()
	denyFile := writeList(t, dir, "deny.txt", "bad.com\n")

	f := NewDomainFilter("", denyFile, PolicyAllow, time.Minute)
	defer f.Close()
	assert.False(t, f.Allowed("bad.com"))
	assert.True(t, f.Allowed("good.com"))
}

func TestFilterWildcardAndWWW(t *testing.T) {
	dir := t.TempDir()
	denyFile := writeList(t, dir, "deny.txt", "*.tracker.net\nads.com\n")

	f := NewDomainFilter("", denyFile, PolicyAllow, time.Minute)
	defer f.Close()
	assert.False(t, f.Allowed("cdn.tracker.net"))
	assert.False(t, f.Allowed("tracker.net"))
	assert.False(t, f.Allowed("www.ads.com"))
	assert.False(t, f.Allowed("ADS.com"))
	assert.True(t, f.Allowed("nottracker.net"))
}

func TestFilterSkipsCommentsAndBlanks(t *testing.T) {
	dir := t.TempDir()
	denyFile := writeList(t, dir, "deny.txt", "# blocked domains\n\nbad.com\n  \n# end\n")

	f := NewDomainFilter("", denyFile, PolicyAllow, time.Minute)
	defer f.Close()
	assert.False(t, f.Allowed("bad.com"))
	assert.True(t, f.Allowed("good.com"))
}

func TestFilterReloadPicksUpEdits(t *testing.T) {
	dir := t.TempDir()
	denyFile := writeList(t, dir, "deny.txt", "old.com\n")

	// A tiny interval so the test does not wait.
	f := NewDomainFilter("", denyFile, PolicyAllow, 10*time.Millisecond)
	defer f.Close()
	require.False(t, f.Allowed("old.com"))
	require.True(t, f.Allowed("new.com"))

	writeList(t, dir, "deny.txt", "new.com\n")
	time.Sleep(50 * time.Millisecond)

	assert.False(t, f.Allowed("new.com"))
	assert.True(t, f.Allowed("old.com"))
}

func TestFilterMissingFilesAreEmpty(t *testing.T) {
	f := NewDomainFilter("/nonexistent/allow.txt", "/nonexistent/deny.txt", PolicyAllow, time.Minute)
	defer f.Close()
	assert.True(t, f.Allowed("example.com"))
}
