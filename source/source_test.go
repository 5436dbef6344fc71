package source

import (
	"io/ioutil"
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenLocalFile(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, dir)

	path := filepath.Join(dir, "container.bin")
	require.NoError(t, ioutil.WriteFile(path, []byte("polyglot-fixture-bytes"), 0644))

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []byte("polyglot-fixture-bytes"), f.Data)
	assert.NotZero(t, f.Fingerprint)
}

func TestOpenIsCachedByPath(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, dir)

	path := filepath.Join(dir, "container.bin")
	require.NoError(t, ioutil.WriteFile(path, []byte("same bytes"), 0644))

	f1, err := Open(path)
	require.NoError(t, err)
	f2, err := Open(path)
	require.NoError(t, err)

	assert.True(t, f1 == f2, "Open should cache by resolved path")
}

func TestOpenMutableCopy(t *testing.T) {
	dir, cleanup := testutil.TempDir(t, "", "")
	defer testutil.NoCleanupOnError(t, cleanup, dir)

	path := filepath.Join(dir, "mutable.bin")
	require.NoError(t, ioutil.WriteFile(path, []byte("ORIGINAL"), 0644))

	f, err := Open(path)
	require.NoError(t, err)
	defer f.Close()

	f.Data[0] = 'X'
	assert.Equal(t, byte('X'), f.Data[0])

	onDisk, err := ioutil.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("ORIGINAL"), onDisk, "mmap is copy-on-write; the backing file must be untouched")
}
