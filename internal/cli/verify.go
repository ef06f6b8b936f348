package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jamhub/jamhub/internal/schema"
	"github.com/jamhub/jamhub/internal/store"
)

// Problem is one integrity finding from a verification scan.
type Problem struct {
	Relation string `json:"relation"` // relation type and file ID
	Field    string `json:"field"`
	Message  string `json:"message"`
}

// VerifyReport summarizes a verification scan.
type VerifyReport struct {
	Relations int       `json:"relations_scanned"`
	Problems  []Problem `json:"problems,omitempty"`
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Scan the store for dangling references and duplicate relation keys",
		Long: `Verify referential integrity of a store directory.

Walks every relation file, resolving each composite-key reference against
the content directories and checking composite-key uniqueness. Exits 1
when problems are found, 2 on command errors.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runVerify(rootOpts, cmd)
		},
	}
}

func runVerify(opts *RootOptions, cmd *cobra.Command) error {
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
	cfg, err := schema.Default()
	if err != nil {
		return WrapExitError(ExitCommandError, "load schema", err)
	}

	report := VerifyReport{}
	for relType, spec := range cfg.Relations {
		relations, err := files.List(relType)
		if err != nil {
			return WrapExitError(ExitCommandError, "list "+relType, err)
		}
		formatter.VerboseLog("scanning %s: %d relation(s)", relType, len(relations))

		seen := make(map[string]string)
		for _, rel := range relations {
			report.Relations++

			for field, contentType := range spec.Refs {
				if !files.Exists(contentType, rel.String(field)) {
					report.Problems = append(report.Problems, Problem{
						Relation: relType + "/" + rel.ID,
						Field:    field,
						Message:  fmt.Sprintf("dangling reference to %s/%s", contentType, rel.String(field)),
					})
				}
			}
			for field, typeField := range spec.DynamicRefs {
				contentType := rel.String(typeField)
				if !files.Exists(contentType, rel.String(field)) {
					report.Problems = append(report.Problems, Problem{
						Relation: relType + "/" + rel.ID,
						Field:    field,
						Message:  fmt.Sprintf("dangling reference to %s/%s", contentType, rel.String(field)),
					})
				}
			}

			key := ""
			for _, field := range spec.Keys {
				key += rel.String(field) + "\x00"
			}
			if otherID, dup := seen[key]; dup {
				report.Problems = append(report.Problems, Problem{
					Relation: relType + "/" + rel.ID,
					Message:  fmt.Sprintf("duplicate composite key, first seen in %s", otherID),
				})
			} else {
				seen[key] = relType + "/" + rel.ID
			}
		}
	}

	if len(report.Problems) > 0 {
		if opts.Format == "json" {
			if err := formatter.Success(report); err != nil {
				return err
			}
		} else {
			for _, p := range report.Problems {
				fmt.Fprintf(formatter.Writer, "%s: %s\n", p.Relation, p.Message)
			}
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%d integrity problem(s) found", len(report.Problems)))
	}

	return formatter.Success(fmt.Sprintf("ok: %d relation(s) verified", report.Relations))
}
