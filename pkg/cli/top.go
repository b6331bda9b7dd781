package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bstardust/photo-gps-resolver/internal/config"
	"github.com/bstardust/photo-gps-resolver/internal/stats"
	"github.com/bstardust/photo-gps-resolver/pkg/models"
)

func newTopCommand(cfg *config.Config) *cobra.Command {
	var (
		lang  string
		limit int
	)

	cmd := &cobra.Command{
		Use:       "top camera|lens|country",
		Short:     "Show the most popular cameras, lenses or countries",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"camera", "lens", "country"},
		RunE: func(cmd *cobra.Command, args []string) error {
			column, err := topColumn(args[0], models.ParseLang(lang))
			if err != nil {
				return err
			}

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())

			roster, err := a.engine.MostPopular(cmd.Context(), column, limit)
			if err != nil {
				return err
			}
			if roster.Empty() {
				fmt.Fprintln(cmd.OutOrStdout(), "No data yet")
				return nil
			}
			return writeJSON(cmd.OutOrStdout(), roster)
		},
	}

	cmd.Flags().StringVar(&lang, "lang", string(models.LangEnglish), "Language of country names (en-US, ru-RU)")
	cmd.Flags().IntVar(&limit, "limit", 0, "Number of entries (default from stats.top_limit)")

	return cmd
}

func topColumn(feature string, lang models.Lang) (stats.Column, error) {
	switch feature {
	case "camera":
		return stats.ColumnCamera, nil
	case "lens":
		return stats.ColumnLens, nil
	case "country":
		return stats.CountryColumn(lang), nil
	}
	return "", fmt.Errorf("unknown feature %q, want camera, lens or country", feature)
}
