package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/yungbote/knowtree-backend/internal/app"
	types "github.com/yungbote/knowtree-backend/internal/domain"
	"github.com/yungbote/knowtree-backend/internal/modules/knowledge/ingest"
	"github.com/yungbote/knowtree-backend/internal/modules/knowledge/parser"
	"github.com/yungbote/knowtree-backend/internal/pkg/dbctx"
	"github.com/yungbote/knowtree-backend/internal/platform/vectorstore"
)

var (
	ingestKB    string
	ingestNewKB string
	ingestUser  string
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <file>...",
	Short: "Parse, chunk and embed files into a knowledge base",
	Long:  "Each file is processed inline; the command reports one line per document. Pass --kb for an existing knowledge base or --new-kb to create one.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if (ingestKB == "") == (ingestNewKB == "") {
			return errors.New("exactly one of --kb or --new-kb is required")
		}
		out := cmd.OutOrStdout()
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			a.ProcessInline()
			kbID, err := resolveKB(ctx, a)
			if err != nil {
				return err
			}
			var failed int
			for _, path := range args {
				doc, err := ingestFile(ctx, a, kbID, path)
				if err != nil {
					failed++
					fmt.Fprintf(out, "%s: failed: %v\n", path, err)
					continue
				}
				fmt.Fprintf(out, "%s: %s document=%s tokens=%d\n", path, doc.Status, doc.ID, doc.TokenCount)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d files failed", failed, len(args))
			}
			return nil
		})
	},
}

func resolveKB(ctx context.Context, a *app.App) (uuid.UUID, error) {
	dbc := dbctx.New(ctx)
	if ingestKB != "" {
		id, err := uuid.Parse(strings.TrimSpace(ingestKB))
		if err != nil {
			return uuid.Nil, fmt.Errorf("invalid --kb: %w", err)
		}
		return id, nil
	}
	owner, err := parseUser(ingestUser)
	if err != nil {
		return uuid.Nil, err
	}
	kb := &types.KnowledgeBase{
		OwnerID:    owner,
		Name:       strings.TrimSpace(ingestNewKB),
		Visibility: types.VisibilityPrivate,
	}
	if err := a.Repos.KnowledgeBase.Create(dbc, kb); err != nil {
		return uuid.Nil, fmt.Errorf("create knowledge base: %w", err)
	}
	a.Log.Info("Knowledge base created", "kb_id", kb.ID.String(), "owner_id", owner.String())
	return kb.ID, nil
}

func ingestFile(ctx context.Context, a *app.App, kbID uuid.UUID, path string) (*types.KbDocument, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if info.Size() > parser.MaxFileSize {
		return nil, fmt.Errorf("file exceeds %d bytes", parser.MaxFileSize)
	}
	doc, err := a.Ingest.Upload(ctx, ingest.UploadRequest{
		KbID:     kbID,
		FileName: filepath.Base(abs),
		FilePath: abs,
		FileSize: info.Size(),
	})
	if err != nil {
		return nil, err
	}
	// Upload returns the pending row; reload for the processed state.
	if fresh, err := a.Repos.KbDocument.GetByID(dbctx.New(ctx), doc.ID); err == nil && fresh != nil {
		return fresh, nil
	}
	return doc, nil
}

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Re-embed every completed chunk into the vector store",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		return withApp(cmd, func(ctx context.Context, a *app.App) error {
			res, err := a.Ingest.ReindexAllChunks(ctx)
			if errors.Is(err, vectorstore.ErrNotReady) {
				return fmt.Errorf("vector store unavailable; nothing reindexed (%d chunks pending)", res.TotalChunks)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "reindexed %d of %d chunks\n", res.Processed, res.TotalChunks)
			return nil
		})
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestKB, "kb", "", "Target knowledge base id")
	ingestCmd.Flags().StringVar(&ingestNewKB, "new-kb", "", "Create a private knowledge base with this name")
	ingestCmd.Flags().StringVar(&ingestUser, "user", "", "Owner id for --new-kb")
	rootCmd.AddCommand(ingestCmd, reindexCmd)
}
