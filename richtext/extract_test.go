package richtext_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/linguist/richtext"
)

func TestExtractorMatch(t *testing.T) {
	ex, err := richtext.NewExtractor([]string{
		`<%username%> (.+)`,
		`\[Discord\] [^:]+: (.+)`,
		`(.+) says hi`,
		`(.+)`,
	})
	require.NoError(t, err)

	tests := []struct {
		name   string
		text   string
		sender richtext.Sender
		want   string
		ok     bool
	}{
		{
			name:   "username rule",
			text:   "<Al.ice> hello there",
			sender: richtext.Sender{ID: "u1", Name: "Al.ice"},
			want:   "hello there",
			ok:     true,
		},
		{
			name:   "username is quoted",
			text:   "<Alxice> hello there",
			sender: richtext.Sender{ID: "u1", Name: "Al.ice"},
			want:   "<Alxice> hello there",
			ok:     true,
		},
		{
			name: "static rule",
			text: "[Discord] bob: yo",
			want: "yo",
			ok:   true,
		},
		{
			name: "first match wins",
			text: "Bob says hi",
			want: "Bob",
			ok:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ex.Match(tt.text, tt.sender)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractorNoMatch(t *testing.T) {
	ex, err := richtext.NewExtractor([]string{`<%username%> (.+)`})
	require.NoError(t, err)

	_, ok := ex.Match("Server restarting in 5 minutes", richtext.Sender{ID: "u1", Name: "Steve"})
	assert.False(t, ok)

	_, ok = ex.Match("<Steve> hi", richtext.Sender{})
	assert.False(t, ok)

	_, ok = ex.Match("<Steve>  ", richtext.Sender{ID: "u1", Name: "Steve"})
	assert.False(t, ok)
}

func TestExtractorFollowsRename(t *testing.T) {
	ex, err := richtext.NewExtractor([]string{`<%username%> (.+)`})
	require.NoError(t, err)

	got, ok := ex.Match("<Steve> one", richtext.Sender{ID: "u1", Name: "Steve"})
	require.True(t, ok)
	assert.Equal(t, "one", got)

	_, ok = ex.Match("<Steve> two", richtext.Sender{ID: "u1", Name: "Alex"})
	assert.False(t, ok)

	got, ok = ex.Match("<Alex> three", richtext.Sender{ID: "u1", Name: "Alex"})
	require.True(t, ok)
	assert.Equal(t, "three", got)
}

func TestExtractFromTree(t *testing.T) {
	ex, err := richtext.NewExtractor([]string{`<%username%> (.+)`})
	require.NoError(t, err)

	tree := richtext.Translate("chat.type.text", richtext.Text("Steve"), richtext.Text("bonjour"))
	got, ok := ex.Extract(tree, richtext.Sender{ID: "u1", Name: "Steve"})
	require.True(t, ok)
	assert.Equal(t, "bonjour", got)
}

func TestNewExtractorRejectsBadPatterns(t *testing.T) {
	_, err := richtext.NewExtractor([]string{`(unclosed`})
	require.Error(t, err)

	_, err = richtext.NewExtractor([]string{`<%username%> (unclosed`})
	require.Error(t, err)
}
