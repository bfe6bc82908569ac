package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestServerConfigIsDefault(t *testing.T) {
	assert.True(t, ServerConfig{}.IsDefault())
	assert.False(t, ServerConfig{Zones: []Name{ParseName("com")}}.IsDefault())
}

func TestServerConfigMatches(t *testing.T) {
	s := ServerConfig{Zones: []Name{ParseName("example.com")}}
	assert.True(t, s.Matches(ParseName("foo.example.com")))
	assert.False(t, s.Matches(ParseName("foo.net")))
}

func TestServerConfigDefaultNeverMatches(t *testing.T) {
	s := ServerConfig{}
	assert.False(t, s.Matches(ParseName("anything.com")))
}
