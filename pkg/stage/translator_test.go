package stage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentflow/internal/mocks"
	"agentflow/pkg/config"
)

func TestSanitizeTranslated(t *testing.T) {
	tests := []struct {
		name, in, want string
	}{
		{"plain", "Fix the parser", "Fix the parser"},
		{"fixed tail", "Fix the parser\n**Fixed version:** blah", "Fix the parser"},
		{"summary tail", "Add a flag **change summary** - stuff", "Add a flag"},
		{"fence", "Fix this ```py\nx = 1\n``` please", "Fix this  please"},
		{"paragraphs", "First part.\n\nSecond part.", "First part."},
		{"blank", "  \n ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeTranslated(tt.in))
		})
	}
}

func TestIsRefusal(t *testing.T) {
	assert.True(t, IsRefusal("I'm sorry, but I can't do that."))
	assert.True(t, IsRefusal("I cannot help with this request"))
	assert.False(t, IsRefusal("Fix the bug in parser.py"))
	assert.False(t, IsRefusal(""))

	long := make([]byte, 600)
	for i := range long {
		long[i] = 'a'
	}
	assert.False(t, IsRefusal("I'm sorry "+string(long)))
}

func TestTranslator(t *testing.T) {
	oracle := mocks.NewMockLLMClient()
	oracle.Script(config.StageTranslator,
		"Fix the parser\n\nThanks!",
		"I'm sorry, I can't help with that.",
		"Parser corretto.",
	)
	oracle.ScriptError(config.StageTranslator, errors.New("timeout"))
	inv := NewInvoker(staticSource{oracle}, testConfig(), nil)
	tr := NewTranslator(inv, "Italian")
	ctx := context.Background()

	got, err := tr.ToEnglish(ctx, "Correggi il parser")
	require.NoError(t, err)
	assert.Equal(t, "Fix the parser", got)

	got, err = tr.ToEnglish(ctx, "Correggi il parser")
	require.NoError(t, err)
	assert.Equal(t, "Correggi il parser", got, "refusal keeps the original")

	got, err = tr.FromEnglish(ctx, "Parser fixed.")
	require.NoError(t, err)
	assert.Equal(t, "Parser corretto.", got)

	got, err = tr.FromEnglish(ctx, "Parser fixed.")
	require.NoError(t, err)
	assert.Equal(t, "Parser fixed.", got, "failure keeps the original")

	calls := oracle.CallsFor(config.StageTranslator)
	require.Len(t, calls, 4)
	assert.Contains(t, calls[0].Messages[0].Content, "into English")
	assert.Contains(t, calls[2].Messages[0].Content, "into Italian")
}

func TestTranslatorDisabled(t *testing.T) {
	oracle := mocks.NewMockLLMClient()
	tr := NewTranslator(NewInvoker(staticSource{oracle}, testConfig(), nil), " ")
	got, err := tr.ToEnglish(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
	assert.Empty(t, oracle.CompleteCalls)
}
