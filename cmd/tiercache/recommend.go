package main

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/tiercache/tiercache/internal/recommend"
	"github.com/tiercache/tiercache/pkg/api"
	"github.com/tiercache/tiercache/pkg/types"
)

func newRecommendCmd() *cobra.Command {
	var (
		kind      string
		frequency int
		duration  time.Duration
	)

	cmd := &cobra.Command{
		Use:   CmdRecommend + " <key>",
		Short: "Print a caching recommendation for an access pattern",
		Example: `  tiercache recommend --kind frequent --frequency 25 fonts/serif
  tiercache recommend --kind temporal --duration 30s session/42`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pattern := types.AccessPattern{
				Kind:      types.PatternKind(kind),
				Frequency: frequency,
				Duration:  duration,
			}
			switch pattern.Kind {
			case types.PatternFrequent, types.PatternTemporal, types.PatternCritical, types.PatternEphemeral:
			default:
				return fmt.Errorf("unknown pattern kind %q (must be frequent, temporal, critical or ephemeral)", kind)
			}

			rec := recommend.Recommend(args[0], pattern)
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(api.RecommendationView(rec))
		},
	}
	cmd.Flags().StringVar(&kind, "kind", string(types.PatternFrequent), "Access pattern: frequent, temporal, critical or ephemeral")
	cmd.Flags().IntVar(&frequency, "frequency", 0, "Accesses observed (frequent)")
	cmd.Flags().DurationVar(&duration, "duration", 0, "Expected lifetime (temporal)")
	return cmd
}
