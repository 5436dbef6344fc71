package registry

import (
	"flag"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/polymixer/polymixer/chunk"
	"github.com/polymixer/polymixer/hooks"
	"github.com/polymixer/polymixer/producer"
)

type stubProducer struct{}

func (stubProducer) Params(*flag.FlagSet)                  {}
func (stubProducer) Setup(*producer.Args, *hooks.Bus) error { return nil }
func (stubProducer) Chunks() ([]chunk.Chunk, error)         { return nil, nil }

func TestGetKnownModule(t *testing.T) {
	r := New()
	r.Register("zip", func() producer.Producer { return stubProducer{} })

	p, err := r.Get("zip")
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestGetUnknownModuleSuggestsTypo(t *testing.T) {
	r := New()
	r.Register("zip", func() producer.Producer { return stubProducer{} })
	r.Register("truecrypt", func() producer.Producer { return stubProducer{} })

	_, err := r.Get("zpi")
	require.Error(t, err)

	unknown, ok := err.(*ErrUnknownModule)
	require.True(t, ok)
	assert.Equal(t, "zip", unknown.Suggestion)
}

func TestGetUnknownModuleNoCloseSuggestion(t *testing.T) {
	r := New()
	r.Register("zip", func() producer.Producer { return stubProducer{} })

	_, err := r.Get("truecrypt")
	require.Error(t, err)

	unknown, ok := err.(*ErrUnknownModule)
	require.True(t, ok)
	assert.Empty(t, unknown.Suggestion)
}

func TestNamesPreservesRegistrationOrder(t *testing.T) {
	r := New()
	r.Register("shell", func() producer.Producer { return stubProducer{} })
	r.Register("ext2", func() producer.Producer { return stubProducer{} })

	assert.Equal(t, []string{"shell", "ext2"}, r.Names())
}

func TestListIsSorted(t *testing.T) {
	r := New()
	r.Register("zip", func() producer.Producer { return stubProducer{} })
	r.Register("ext2", func() producer.Producer { return stubProducer{} })

	assert.Equal(t, []string{"ext2", "zip"}, r.List())
}
