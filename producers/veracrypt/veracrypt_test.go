package veracrypt

import (
	"io/ioutil"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polymixer/polymixer/hooks"
	"github.com/polymixer/polymixer/producer"
)

type fakeResalter struct {
	calls      int
	outputPath string
	password   string
	saltPath   string
}

func (f *fakeResalter) Resalt(outputPath, password, extSaltPath string) error {
	f.calls++
	f.outputPath = outputPath
	f.password = password
	f.saltPath = extSaltPath
	return nil
}

func buildContainer(t *testing.T) string {
	t.Helper()
	size := 2*containerPosition + 4096
	data := make([]byte, size)
	for i := 0; i < volumeHeaderSize; i++ {
		data[i] = byte(i)
	}
	f, err := ioutil.TempFile("", "vc-*.vc")
	require.NoError(t, err)
	_, err = f.Write(data)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	t.Cleanup(func() { os.Remove(f.Name()) })
	return f.Name()
}

func TestChunksShape(t *testing.T) {
	path := buildContainer(t)
	h := &Handler{file: path}

	chunks, err := h.Chunks()
	require.NoError(t, err)
	require.Len(t, chunks, 4)
	assert.EqualValues(t, volumeHeaderSize, chunks[0].Size)
	assert.EqualValues(t, -containerPosition, chunks[3].Pos.At)
}

func TestSetupRequiresPasswordForReencryption(t *testing.T) {
	h := &Handler{reencrypt: true, resalter: &fakeResalter{}}
	err := h.Setup(&producer.Args{}, hooks.NewBus())
	assert.Error(t, err)
}

func TestFinishRestoresSaltAndInvokesResalter(t *testing.T) {
	path := buildContainer(t)
	rec := &fakeResalter{}
	h := &Handler{file: path, reencrypt: true, passwordStr: "hunter2", resalter: rec}

	_, err := h.Chunks()
	require.NoError(t, err)

	out, err := ioutil.TempFile("", "vc-out-*.vc")
	require.NoError(t, err)
	defer os.Remove(out.Name())
	displacedSalt := make([]byte, saltSize)
	for i := range displacedSalt {
		displacedSalt[i] = 0xAB
	}
	_, err = out.Write(displacedSalt)
	require.NoError(t, err)
	require.NoError(t, out.Close())

	require.NoError(t, h.finish(out.Name()))

	assert.Equal(t, 1, rec.calls)
	assert.Equal(t, "hunter2", rec.password)

	restored, err := ioutil.ReadFile(out.Name())
	require.NoError(t, err)
	assert.Equal(t, h.oldSalt, restored[0:saltSize])
}
