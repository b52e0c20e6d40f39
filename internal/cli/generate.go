package cli

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/knowtree-backend/internal/app"
	"github.com/yungbote/knowtree-backend/internal/modules/graphgen"
)

var (
	generateProvider string
	generateUser     string
	generateChildren int
	generateDepth    int
	generateRetries  int
)

var generateCmd = &cobra.Command{
	Use:   "generate <topic>",
	Short: "Generate a knowledge tree for a topic",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, err := parseUser(generateUser)
		if err != nil {
			return err
		}
		topic := strings.Join(args, " ")
		out := cmd.OutOrStdout()
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.Graphs.Run(ctx, topic, graphgen.RunOptions{
				UserID:     userID,
				Provider:   generateProvider,
				Config:     generateOverrides(cmd),
				OnProgress: progressPrinter(out),
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "graph %s: %d nodes, depth %d\n", res.GraphID, res.State.NodeCount, res.State.MaxDepth)
			return nil
		})
	},
}

// generateOverrides sets only the flags given on the command line.
func generateOverrides(cmd *cobra.Command) *graphgen.Overrides {
	o := &graphgen.Overrides{}
	flags := cmd.Flags()
	if flags.Changed("children") {
		o.MaxChildrenPerNode = &generateChildren
	}
	if flags.Changed("depth") {
		o.GenerateDepth = &generateDepth
	}
	if flags.Changed("retries") {
		o.MaxRetries = &generateRetries
	}
	return o
}

func progressPrinter(w io.Writer) graphgen.ProgressFunc {
	return func(ev graphgen.Event) {
		fmt.Fprintf(w, "[%3d%%] %-16s %s\n", ev.Progress, ev.Step, ev.Message)
	}
}

// parseUser accepts a uuid, or generates one when raw is empty.
func parseUser(raw string) (uuid.UUID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return uuid.New(), nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid --user %q: %w", raw, err)
	}
	return id, nil
}

func init() {
	generateCmd.Flags().StringVar(&generateProvider, "provider", "", "LLM provider name (default: gateway default)")
	generateCmd.Flags().StringVar(&generateUser, "user", "", "User id recorded as the graph creator")
	generateCmd.Flags().IntVar(&generateChildren, "children", 0, "Max children per node (default GRAPH_MAX_CHILDREN)")
	generateCmd.Flags().IntVar(&generateDepth, "depth", 0, "Generated depth (default GRAPH_GENERATE_DEPTH)")
	generateCmd.Flags().IntVar(&generateRetries, "retries", 0, "Tree generation retries; 0 disables them (default GRAPH_MAX_RETRIES)")
	rootCmd.AddCommand(generateCmd)
}
