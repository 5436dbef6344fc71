package shell

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polymixer/polymixer/chunk"
	"github.com/polymixer/polymixer/hooks"
	"github.com/polymixer/polymixer/producer"
)

func writeTempScript(t *testing.T, content string) string {
	f, err := ioutil.TempFile("", "shell-*.sh")
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

func TestChunksShape(t *testing.T) {
	path := writeTempScript(t, "echo hi")
	h := &Handler{file: path}

	bus := hooks.NewBus()
	require.NoError(t, h.Setup(&producer.Args{}, bus))

	chunks, err := h.Chunks()
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	fixed, flexible := chunk.Partition(chunks)
	require.Len(t, fixed, 1)
	require.Len(t, flexible, 1)

	assert.EqualValues(t, headerSize, fixed[0].Size)
	assert.EqualValues(t, len("echo hi\nexit\n"), flexible[0].Size)
	assert.Equal(t, scriptExtra{}, flexible[0].Extra)
}

func TestHeaderPatchedAfterPlacement(t *testing.T) {
	path := writeTempScript(t, "echo hi")
	h := &Handler{file: path}

	bus := hooks.NewBus()
	require.NoError(t, h.Setup(&producer.Args{}, bus))

	chunks, err := h.Chunks()
	require.NoError(t, err)
	_, flexible := chunk.Partition(chunks)
	require.Len(t, flexible, 1)

	bus.Trigger(hooks.Event{Topic: hooks.PlacingChunk, Start: 64, End: 64 + flexible[0].Size, Chunk: flexible[0]})
	bus.Trigger(hooks.Event{Topic: hooks.PlacingComplete})

	assert.Contains(t, string(h.header), "tail -c+65 $0|bash")
}
