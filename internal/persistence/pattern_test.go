package persistence

import (
	"testing"

	_assert "github.com/stretchr/testify/assert"
)

func TestSearchPattern_Match(t *testing.T) {
	assert := _assert.New(t)

	p := Pattern("app*")
	assert.Equal(true, p.Match("application"))
	assert.Equal(true, p.Match("apple"))
	assert.Equal(false, p.Match("mapple"))
	assert.Equal(false, p.Match("car"))

	p = Pattern("logs/*.bbin")
	assert.True(p.Match("logs/mavlink_log_20260101_120000.bbin"))
	assert.False(p.Match("logs/notes.txt"))
	assert.True(Pattern("*").Match(""))
}

func TestSearchPattern_SQLLike(t *testing.T) {
	assert := _assert.New(t)

	assert.Equal("%.bbin", Pattern("*.bbin").SQLLike())
	assert.Equal(`mavlink\_log%`, Pattern("mavlink_log*").SQLLike())
}

func TestValidateSessionID(t *testing.T) {
	assert := _assert.New(t)

	assert.NoError(ValidateSessionID("2f1c6a2e-0b7c-4a4e-9d3c-1a2b3c4d5e6f"))
	assert.Equal(ErrSessionIDEmpty, ValidateSessionID("  "))
	assert.Equal(ErrSessionInvalid, ValidateSessionID("a/b"))
}
