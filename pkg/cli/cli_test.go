package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bstardust/photo-gps-resolver/internal/stats"
	"github.com/bstardust/photo-gps-resolver/pkg/models"
)

func run(args ...string) (string, error) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand_Subcommands(t *testing.T) {
	cmd := NewRootCommand()

	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"inspect", "top", "stats", "aliases", "schema"} {
		assert.Contains(t, names, want)
	}
}

func TestTopColumn(t *testing.T) {
	tests := []struct {
		feature string
		lang    models.Lang
		want    stats.Column
	}{
		{"camera", models.LangEnglish, stats.ColumnCamera},
		{"lens", models.LangRussian, stats.ColumnLens},
		{"country", models.LangEnglish, stats.ColumnCountryEn},
		{"country", models.LangRussian, stats.ColumnCountryRu},
	}

	for _, tt := range tests {
		got, err := topColumn(tt.feature, tt.lang)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}

	_, err := topColumn("shutter", models.LangEnglish)
	assert.Error(t, err)
}

func TestTop_UnknownFeature(t *testing.T) {
	_, err := run("top", "shutter", "--log-level", "disabled")
	assert.Error(t, err)
}

func TestInspect_NoPhotos(t *testing.T) {
	_, err := run("inspect", t.TempDir(), "--log-level", "disabled")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no photos found")
}

func TestInspect_RequiresPath(t *testing.T) {
	_, err := run("inspect", "--log-level", "disabled")
	assert.Error(t, err)
}
