package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookup(t *testing.T) {
	for _, typ := range []Type{TypeClaude, TypeCodex, TypeGemini, TypeAider, TypeShell} {
		spec, err := Lookup(typ)
		require.NoError(t, err, "adapter %s should be registered", typ)
		assert.Equal(t, typ, spec.Type)
		assert.NotEmpty(t, spec.Binary)
	}

	_, err := Lookup(Type("cursor"))
	assert.Error(t, err)
}

func TestLaunchCommandIncludesTask(t *testing.T) {
	tests := []struct {
		typ  Type
		task string
	}{
		{TypeClaude, "fix the login bug"},
		{TypeCodex, "add tests"},
		{TypeGemini, "refactor parser"},
		{TypeAider, "update readme"},
		{TypeShell, "make build"},
	}

	for _, tt := range tests {
		t.Run(string(tt.typ), func(t *testing.T) {
			spec, err := Lookup(tt.typ)
			require.NoError(t, err)

			cmd := spec.LaunchCommand(tt.task)
			assert.Equal(t, spec.Binary, cmd[0])
			assert.Contains(t, cmd, tt.task, "task must appear as its own argv element")
		})
	}
}

func TestDefaultOrderIsDeterministic(t *testing.T) {
	first := DefaultOrder()
	second := DefaultOrder()
	assert.Equal(t, first, second)
	assert.Equal(t, TypeClaude, first[0], "claude is the first-listed candidate")
	assert.Len(t, first, len(All()))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(TypeShell))
	assert.False(t, Valid(Type("")))
	assert.False(t, Valid(Type("emacs")))
}
