package password

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashVerify(t *testing.T) {
	encoded, err := Hash("hunter22")
	require.NoError(t, err)
	assert.Contains(t, encoded, "$argon2id$v=19$m=65536,t=1,p=4$")

	assert.True(t, Verify("hunter22", encoded))
	assert.False(t, Verify("hunter23", encoded))
	assert.False(t, Verify("hunter22", "$bcrypt$nope"))
	assert.False(t, Verify("hunter22", "$argon2id$v=19$m=x,t=1,p=4$c2FsdA$a2V5"))
}

func TestNeedsRehash(t *testing.T) {
	current, err := Hash("hunter22")
	require.NoError(t, err)
	assert.False(t, NeedsRehash(current))

	weak, err := HashWith("hunter22", Params{Time: 1, Memory: 8 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16})
	require.NoError(t, err)
	assert.True(t, Verify("hunter22", weak))
	assert.True(t, NeedsRehash(weak))

	assert.True(t, NeedsRehash("garbage"))
}
