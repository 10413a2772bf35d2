package result

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var ref = NodeRef{ID: "n1", Type: "csv"}

func TestFail_DataIsErrorText(t *testing.T) {
	env := Fail(ref, Metadata{RunID: "r"}, errors.New("file not found"))

	assert.True(t, env.Error)
	assert.Equal(t, "file not found", env.Data)
	assert.Equal(t, "file not found", env.ErrorText())
	assert.Nil(t, env.Payload(), "failed envelopes never expose a payload")
	assert.False(t, env.Succeeded())
}

func TestFail_NilError(t *testing.T) {
	env := Fail(ref, Metadata{}, nil)
	assert.True(t, env.Error)
	assert.Equal(t, "unknown error", env.Data)
}

func TestOK(t *testing.T) {
	env := OK(ref, Metadata{}, 50)
	assert.False(t, env.Error)
	assert.Equal(t, 50, env.Payload())
	assert.Empty(t, env.ErrorText())
}

func TestInputs_Helpers(t *testing.T) {
	in := Inputs{
		"b": OK(NodeRef{ID: "b"}, Metadata{}, 1),
		"a": Failf(NodeRef{ID: "a"}, Metadata{}, "boom %d", 1),
		"c": Failf(NodeRef{ID: "c"}, Metadata{}, "later"),
	}

	assert.Equal(t, []string{"a", "b", "c"}, in.IDs())

	id, env, ok := in.FirstFailure()
	require.True(t, ok)
	assert.Equal(t, "a", id)
	assert.Equal(t, "boom 1", env.ErrorText())

	_, _, ok = in.Single()
	assert.False(t, ok)

	assert.Equal(t, map[string]any{"b": 1}, in.Payloads())
}

func TestInputs_Single(t *testing.T) {
	in := Inputs{"only": OK(NodeRef{ID: "only"}, Metadata{}, "x")}
	id, env, ok := in.Single()
	require.True(t, ok)
	assert.Equal(t, "only", id)
	assert.Equal(t, "x", env.Data)

	_, _, ok = in.FirstFailure()
	assert.False(t, ok)
}
