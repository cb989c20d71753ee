package hashing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalJSON_KeyOrderIndependent(t *testing.T) {
	a, err := HashObject(map[string]any{"a": 1, "b": 2})
	require.NoError(t, err)
	b, err := HashObject(map[string]any{"b": 2, "a": 1})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestCanonicalJSON_NoWhitespace(t *testing.T) {
	c, err := CanonicalJSON(map[string]any{"b": []int{1, 2}, "a": "x"})
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x","b":[1,2]}`, c)
}

func TestCanonicalJSON_UnicodePreserved(t *testing.T) {
	c, err := CanonicalJSON(map[string]string{"name": "café", "sym": "<&>"})
	require.NoError(t, err)
	assert.Equal(t, `{"name":"café","sym":"<&>"}`, c)
}

func TestCanonicalJSON_NestedSorted(t *testing.T) {
	c1, err := CanonicalJSON(map[string]any{"outer": map[string]any{"z": 1, "a": 2}})
	require.NoError(t, err)
	c2, err := CanonicalJSON(map[string]any{"outer": map[string]any{"a": 2, "z": 1}})
	require.NoError(t, err)
	assert.Equal(t, c1, c2)
	assert.Equal(t, `{"outer":{"a":2,"z":1}}`, c1)
}

func TestSHA256Hex(t *testing.T) {
	// Known vector for the empty string.
	assert.Equal(t,
		"e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		SHA256Hex(""))
}

func TestHashObject_Deterministic(t *testing.T) {
	v := map[string]any{"email": "a@b.c", "n": 3}
	h1, err := HashObject(v)
	require.NoError(t, err)
	h2, err := HashObject(v)
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
}

func TestMustHash_BadValue(t *testing.T) {
	assert.Empty(t, MustHash(func() {}))
}
