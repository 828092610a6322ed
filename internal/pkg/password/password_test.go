package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashAndMatch(t *testing.T) {
	hash, err := Hash("s3cret")
	require.NoError(t, err)
	require.NotEqual(t, "s3cret", hash)

	assert.True(t, Matches("s3cret", hash))
	assert.False(t, Matches("wrong", hash))
}

func TestMatches_MalformedHash(t *testing.T) {
	assert.False(t, Matches("anything", "not-a-bcrypt-hash"))
	assert.False(t, Matches("anything", ""))
}

func TestHash_Salted(t *testing.T) {
	a, err := Hash("same")
	require.NoError(t, err)
	b, err := Hash("same")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}
