package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNameSplitsLabels(t *testing.T) {
	assert.Equal(t, Name{"www", "example", "com"}, ParseName("www.example.com"))
}

func TestParseNameTrimsTrailingDot(t *testing.T) {
	assert.Equal(t, Name{"example", "com"}, ParseName("example.com."))
}

func TestParseNameLowercases(t *testing.T) {
	assert.Equal(t, Name{"example", "com"}, ParseName("EXAMPLE.COM"))
}

func TestParseNameEmptyIsRoot(t *testing.T) {
	assert.Equal(t, Name{}, ParseName(""))
	assert.Equal(t, Name{}, ParseName("."))
}

func TestNameHasSuffixMatches(t *testing.T) {
	n := ParseName("foo.example.com")
	assert.True(t, n.HasSuffix(ParseName("example.com")))
	assert.True(t, n.HasSuffix(ParseName("com")))
	assert.True(t, n.HasSuffix(n))
	assert.False(t, n.HasSuffix(ParseName("net")))
}

func TestNameHasSuffixRejectsLongerSuffix(t *testing.T) {
	n := ParseName("com")
	assert.False(t, n.HasSuffix(ParseName("example.com")))
}

func TestNameHasSuffixRejectsEmptySuffix(t *testing.T) {
	n := ParseName("foo.com")
	assert.False(t, n.HasSuffix(Name{}))
}

func TestNameEqual(t *testing.T) {
	assert.True(t, ParseName("foo.com").Equal(ParseName("FOO.COM")))
	assert.False(t, ParseName("foo.com").Equal(ParseName("bar.com")))
}

func TestNameCompareLexicographic(t *testing.T) {
	assert.Negative(t, ParseName("a.com").Compare(ParseName("b.com")))
	assert.Positive(t, ParseName("b.com").Compare(ParseName("a.com")))
	assert.Zero(t, ParseName("a.com").Compare(ParseName("a.com")))
}

func TestParseNameIDNA(t *testing.T) {
	n := ParseName("münchen.de")
	assert.Equal(t, "de", n[len(n)-1])
	assert.NotEmpty(t, n[0])
}
