package ext2

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	f, err := ioutil.TempFile("", "ext2-*")
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

func writeImage(t *testing.T, size int) string {
	t.Helper()
	f, err := ioutil.TempFile("", "ext2-img-*")
	require.NoError(t, err)
	require.NoError(t, f.Truncate(int64(size)))
	require.NoError(t, f.Close())
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

func TestChunksSplitsAroundBadblocks(t *testing.T) {
	const blocksize = 1024
	image := writeImage(t, 20*blocksize)
	// unsorted on purpose: exercises the llrb ordering.
	badblocks := writeFile(t, "10\n5\n")

	h := &Handler{file: image, badblocksFile: badblocks, blocksize: blocksize}

	chunks, err := h.Chunks()
	require.NoError(t, err)
	require.Len(t, chunks, 3)

	assert.EqualValues(t, 1024, chunks[0].Pos.At)
	assert.EqualValues(t, 5*blocksize-1024+2*blocksize, chunks[0].Size)

	assert.EqualValues(t, 6*blocksize, chunks[1].Pos.At)
	assert.EqualValues(t, (10*blocksize-6*blocksize)+2*blocksize, chunks[1].Size)

	assert.EqualValues(t, 11*blocksize, chunks[2].Pos.At)
	assert.EqualValues(t, 20*blocksize-11*blocksize, chunks[2].Size)
}

func TestSetupParsesBlocksize(t *testing.T) {
	h := &Handler{blocksizeStr: "4096"}
	require.NoError(t, h.Setup(nil, nil))
	assert.EqualValues(t, 4096, h.blocksize)
}

func TestSetupRejectsInvalidBlocksize(t *testing.T) {
	h := &Handler{blocksizeStr: "not-a-number"}
	assert.Error(t, h.Setup(nil, nil))
}
