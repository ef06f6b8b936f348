package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jamhub/jamhub/internal/cache"
	"github.com/jamhub/jamhub/internal/store"
)

// NewRecacheCommand creates the recache command.
func NewRecacheCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "recache",
		Short: "Rebuild cached post statistics by replaying interactions",
		Long: `Recompute like_count, comment_count, and average_rating for every
post in the store. Recomputation is a full replay, so re-running on an
unchanged store reproduces identical values.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecache(rootOpts, cmd)
		},
	}
}

func runRecache(opts *RootOptions, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	if _, err := os.Stat(opts.DataDir); err != nil {
		return WrapExitError(ExitCommandError, fmt.Sprintf("store directory %q not accessible", opts.DataDir), err)
	}
	files, err := store.Open(opts.DataDir)
	if err != nil {
		return WrapExitError(ExitCommandError, "open store", err)
	}

	updater := cache.New(files)
	posts, err := files.List("post")
	if err != nil {
		return WrapExitError(ExitCommandError, "list posts", err)
	}

	updated := 0
	for _, post := range posts {
		if post.Deleted() {
			continue
		}
		formatter.VerboseLog("recomputing %s", post.ID)
		if err := updater.UpdateCacheStats("post", post.ID); err != nil {
			return WrapExitError(ExitCommandError, "recompute "+post.ID, err)
		}
		updated++
	}

	return formatter.Success(fmt.Sprintf("ok: %d post(s) recomputed", updated))
}
