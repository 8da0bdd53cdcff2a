package security

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpen(t *testing.T) {
	s, err := NewSealer([]byte("master-key"), []byte("salt"))
	require.NoError(t, err)

	sealed, err := s.Seal("app-secret")
	require.NoError(t, err)
	assert.True(t, IsSealed(sealed))
	assert.NotContains(t, sealed, "app-secret")

	again, err := s.Seal("app-secret")
	require.NoError(t, err)
	assert.NotEqual(t, sealed, again)

	plain, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "app-secret", plain)
}

func TestOpenPlaintextPassthrough(t *testing.T) {
	s, err := NewSealer([]byte("master-key"), nil)
	require.NoError(t, err)
	plain, err := s.Open("not-sealed")
	require.NoError(t, err)
	assert.Equal(t, "not-sealed", plain)
}

func TestOpenWrongKey(t *testing.T) {
	a, err := NewSealer([]byte("key-a"), nil)
	require.NoError(t, err)
	b, err := NewSealer([]byte("key-b"), nil)
	require.NoError(t, err)

	sealed, err := a.Seal("secret")
	require.NoError(t, err)
	_, err = b.Open(sealed)
	assert.Error(t, err)

	_, err = a.Open("enc:%%%")
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = a.Open("enc:AAAA")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestNewSealerEmptyKey(t *testing.T) {
	_, err := NewSealer(nil, nil)
	assert.Error(t, err)
}
