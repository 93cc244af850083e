// ABOUTME: Tests for registry construction and lookups.
// ABOUTME: Covers additive merging, malformed resources, and numeric fallbacks.

package registry

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistryWellKnownCodes(t *testing.T) {
	r := Default()

	assert.Equal(t, "OK", r.Name(OK))
	assert.Equal(t, "ALREADY_WRITTEN", r.Name(AlreadyWritten))
	assert.Equal(t, "UNKNOWN_ERROR", r.Name(UnknownError))
	assert.Equal(t, "UNKNOWN_ERROR_NO_RETRY", r.Name(UnknownErrorNoRetry))
	assert.Equal(t, "UNKNOWN_MESSAGE_TYPE", r.Name(UnknownMessageType))
	assert.Equal(t, "CORRUPT_FRAME", r.Name(CorruptFrame))

	code, ok := r.Code("ALREADY_WRITTEN")
	require.True(t, ok)
	assert.Equal(t, AlreadyWritten, code)
}

func TestUnmappedCodesRenderNumerically(t *testing.T) {
	r := Default()
	assert.Equal(t, "9999", r.Name(9999))
	assert.Equal(t, "200", r.TypeName(200))
	assert.Equal(t, "END_OF_STREAM", r.TypeName(0xFF))

	_, ok := r.Code("NOPE")
	assert.False(t, ok)
}

func TestRetryableFamily(t *testing.T) {
	r := Default()
	assert.True(t, r.Retryable(UnknownError))
	assert.True(t, r.Retryable(6), "UNKNOWN_ERROR_TIMEOUT is in the retryable family")
	assert.False(t, r.Retryable(UnknownErrorNoRetry))
	assert.False(t, r.Retryable(UnknownMessageType))
	assert.False(t, r.Retryable(OK))
	assert.False(t, r.Retryable(12345))

	assert.True(t, r.Succeeded(OK))
	assert.True(t, r.Succeeded(AlreadyWritten))
	assert.False(t, r.Succeeded(UnknownError))
}

func TestAdditiveResources(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.Add(Resource{Name: "orders", Data: []byte(`
RATE_LIMITED = 40
UNKNOWN_ERROR_BUSY = 41

[type]
ORDER = 10
`)}))
	require.NoError(t, b.Add(Resource{Name: "invoices", Data: []byte(`
type.INVOICE = 11
OK = 0
`)}))
	r := b.Build()

	assert.Equal(t, "RATE_LIMITED", r.Name(40))
	assert.True(t, r.Retryable(41))
	assert.False(t, r.Retryable(40))

	order, ok := r.Type("ORDER")
	require.True(t, ok)
	assert.Equal(t, uint8(10), order)
	assert.Equal(t, "INVOICE", r.TypeName(11))
	assert.Equal(t, []uint8{1, 10, 11}, r.Types())
}

func TestMalformedResourcesFail(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"not toml", "OK = = 1"},
		{"string value", `BROKEN = "seven"`},
		{"float value", "BROKEN = 1.5"},
		{"negative code", "BROKEN = -1"},
		{"name redefined", "OK = 17"},
		{"code reused", "OTHER = 1"},
		{"type not table", "type = 3"},
		{"type out of range", "[type]\nBIG = 300"},
		{"type end of stream", "[type]\nEOS = 255"},
		{"type code reused", "[type]\nPONG = 1"},
		{"nested type table", "[type.inner]\nX = 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := NewBuilder().Add(Resource{Name: tt.name, Data: []byte(tt.data)})
			assert.ErrorIs(t, err, ErrMalformed)
		})
	}
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "extra.toml")
	require.NoError(t, os.WriteFile(path, []byte("[type]\nAUDIT = 20\n"), 0644))

	r, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "AUDIT", r.TypeName(20))

	_, err = Load(filepath.Join(dir, "missing.toml"))
	assert.Error(t, err)
}

func TestBuiltRegistryIsIndependentOfBuilder(t *testing.T) {
	b := NewBuilder()
	r := b.Build()
	require.NoError(t, b.Add(Resource{Name: "late", Data: []byte("LATE = 77")}))

	assert.Equal(t, "77", r.Name(77), "registry must not see entries added after Build")
}
