package password

import (
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `# vHawk outlet passwords
1445000000.5:1:1:abc

1445000001.0:4:24:s3cret:with:colons
`

func TestFileStoreGet(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/passwords", []byte(sample), 0600))
	store := NewFileStore(fs, "/passwords")

	assert.Equal(t, "abc", store.Get(1, 1))
	assert.Equal(t, "s3cret:with:colons", store.Get(4, 24))
	assert.Equal(t, "", store.Get(1, 2))

	missing := NewFileStore(fs, "/nope")
	assert.Equal(t, "", missing.Get(1, 1))
}

func TestFileStoreSet(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/passwords", []byte(sample), 0600))
	store := NewFileStore(fs, "/passwords")

	require.NoError(t, store.Set(1, 1, "xyz"))
	require.NoError(t, store.Set(7, 3, "new"))
	assert.Error(t, store.Set(7, 3, "two\nlines"))

	assert.Equal(t, "xyz", store.Get(1, 1))
	assert.Equal(t, "new", store.Get(7, 3))
	assert.Equal(t, "s3cret:with:colons", store.Get(4, 24))

	b, err := afero.ReadFile(fs, "/passwords")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(b), "# vHawk outlet passwords\n"))
	assert.Equal(t, 1, strings.Count(string(b), ":1:1:"))

	entries, err := store.List()
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, 1, entries[0].PDU)
	assert.Equal(t, 4, entries[1].PDU)
	assert.Equal(t, 7, entries[2].PDU)
}

func TestFileStoreSetCreatesFile(t *testing.T) {
	t.Parallel()
	fs := afero.NewMemMapFs()
	store := NewFileStore(fs, "/passwords")
	require.NoError(t, store.Set(1, 2, "pw"))
	assert.Equal(t, "pw", store.Get(1, 2))
}
