package target

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Target
	}{
		{"agent/weather", Target{Kind: KindAgent, Name: "weather"}},
		{"team/research-crew", Target{Kind: KindTeam, Name: "research-crew"}},
		{"model/gpt-4o", Target{Kind: KindModel, Name: "gpt-4o"}},
		{"tool/search", Target{Kind: KindTool, Name: "search"}},
		{"model/openai/gpt-4", Target{Kind: KindModel, Name: "openai/gpt-4"}},
		{"agent/a/b/c", Target{Kind: KindAgent, Name: "a/b/c"}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}
}

func TestParse_Rejects(t *testing.T) {
	for _, in := range []string{"", "agent", "workflow/x", "Agent/x", "AGENT/x", "/x", "agent/"} {
		t.Run(in, func(t *testing.T) {
			_, err := Parse(in)
			var invalid *InvalidTargetError
			require.ErrorAs(t, err, &invalid)
			assert.Equal(t, in, invalid.Value)
		})
	}
}

func TestKind_ResourceKind(t *testing.T) {
	for _, k := range Kinds {
		assert.NotEmpty(t, k.ResourceKind(), string(k))
	}
	assert.Empty(t, Kind("workflow").ResourceKind())
}
