package exclude

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func compile(t *testing.T, patterns ...string) *Pattern {
	t.Helper()
	p, err := Compile(patterns)
	require.NoError(t, err)
	return p
}

func TestNilPatternMatchesNothing(t *testing.T) {
	p, err := Compile(nil)
	require.NoError(t, err)
	assert.Nil(t, p)
	assert.False(t, p.Match("/anything"))
}

func TestNameMatchesFinalSegmentAtAnyDepth(t *testing.T) {
	p := compile(t, "node_modules")

	assert.True(t, p.Match("/node_modules"))
	assert.True(t, p.Match("/project/node_modules"))
	assert.True(t, p.Match("/a/b/c/node_modules"))
	assert.False(t, p.Match("/node_modules_backup"))
	assert.False(t, p.Match("/mynode_modules")) // segment boundary required before the name too
}

func TestAnchoredPattern(t *testing.T) {
	p := compile(t, "/tmp")

	assert.True(t, p.Match("/tmp"))
	assert.False(t, p.Match("/var/tmp"))
	assert.False(t, p.Match("/tmpfiles"))
}

func TestDoubleStarMatchesAcrossSeparators(t *testing.T) {
	p := compile(t, "/dir/**")

	assert.True(t, p.Match("/dir/a"))
	assert.True(t, p.Match("/dir/a/b/c"))
	assert.False(t, p.Match("/dir"))
	assert.False(t, p.Match("/other/dir/a"))
}

func TestSingleStarStopsAtSeparator(t *testing.T) {
	p := compile(t, "/logs/*.log")

	assert.True(t, p.Match("/logs/app.log"))
	assert.False(t, p.Match("/logs/archive/app.log"))
}

func TestQuestionMark(t *testing.T) {
	p := compile(t, "cache?")

	assert.True(t, p.Match("/var/cache1"))
	assert.True(t, p.Match("/cacheX"))
	assert.False(t, p.Match("/cache"))
	assert.False(t, p.Match("/cache12"))
}

func TestCharacterClass(t *testing.T) {
	p := compile(t, "core.[0-9]*")

	assert.True(t, p.Match("/app/core.123"))
	assert.True(t, p.Match("/core.7"))
	assert.False(t, p.Match("/app/core.txt"))
}

func TestLiteralDotsAreEscaped(t *testing.T) {
	p := compile(t, "*.pyc")

	assert.True(t, p.Match("/src/module.pyc"))
	assert.False(t, p.Match("/src/modulexpyc"))
}

func TestMultiplePatternsAreORed(t *testing.T) {
	p := compile(t, "/tmp", "*.bak")

	assert.True(t, p.Match("/tmp"))
	assert.True(t, p.Match("/home/file.bak"))
	assert.False(t, p.Match("/home/file.txt"))
}
