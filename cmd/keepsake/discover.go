package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/semmidev/keepsake/internal/app"
	"github.com/semmidev/keepsake/internal/domain"
)

func newDiscoverCmd(flags *globalFlags) *cobra.Command {
	var sizes bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List configuration candidates found under the home directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			application, err := flags.newApp(cfg, app.Options{})
			if err != nil {
				return err
			}
			defer application.Shutdown()

			candidates, err := application.Discover(cmd.Context(), sizes)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), candidatesJSON(candidates, sizes))
			}
			return printCandidates(cmd.OutOrStdout(), candidates, sizes)
		},
	}

	cmd.Flags().BoolVar(&sizes, "sizes", false, "Compute the on-disk size of each candidate")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")

	return cmd
}

func newSourcesCmd(flags *globalFlags) *cobra.Command {
	var mode string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "sources",
		Short: "Resolve the source list a backup in the given mode would archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := domain.ParseMode(mode)
			if err != nil {
				return domain.ConfigError("--mode", err)
			}
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			application, err := flags.newApp(cfg, app.Options{})
			if err != nil {
				return err
			}
			defer application.Shutdown()

			list, err := application.Sources(cmd.Context(), m)
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), sourceListJSON{
					Mode:     string(list.Mode),
					Home:     list.Home,
					Paths:    nonNil(list.Paths),
					Excluded: nonNil(list.Excluded),
					Masked:   nonNil(list.Masked),
				})
			}
			for _, p := range list.Paths {
				fmt.Fprintln(cmd.OutOrStdout(), p)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&mode, "mode", "", "Backup mode (secure or complete)")
	_ = cmd.MarkFlagRequired("mode")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full source list as JSON")

	return cmd
}

type candidateJSON struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category"`
	Path        string `json:"path"`
	IsDir       bool   `json:"is_dir"`
	SizeBytes   *int64 `json:"size_bytes,omitempty"`
}

type sourceListJSON struct {
	Mode     string   `json:"mode"`
	Home     string   `json:"home"`
	Paths    []string `json:"paths"`
	Excluded []string `json:"excluded"`
	Masked   []string `json:"masked"`
}

func candidatesJSON(candidates []domain.Candidate, sizes bool) []candidateJSON {
	out := make([]candidateJSON, 0, len(candidates))
	for _, c := range candidates {
		item := candidateJSON{
			Name:        c.Name,
			Description: c.Description,
			Category:    string(c.Category),
			Path:        c.Path,
			IsDir:       c.IsDir,
		}
		if sizes {
			size := c.SizeBytes
			item.SizeBytes = &size
		}
		out = append(out, item)
	}
	return out
}

func printCandidates(w io.Writer, candidates []domain.Candidate, sizes bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if sizes {
		fmt.Fprintln(tw, "CATEGORY\tNAME\tSIZE\tPATH")
	} else {
		fmt.Fprintln(tw, "CATEGORY\tNAME\tPATH")
	}
	var total int64
	for _, c := range candidates {
		if sizes {
			total += c.SizeBytes
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Category, c.Name, humanize.IBytes(uint64(c.SizeBytes)), c.Path)
		} else {
			fmt.Fprintf(tw, "%s\t%s\t%s\n", c.Category, c.Name, c.Path)
		}
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if sizes {
		fmt.Fprintf(w, "\n%d candidates, %s total\n", len(candidates), humanize.IBytes(uint64(total)))
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}
