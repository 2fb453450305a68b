package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/JonMunkholm/stockbook/internal/core"
	"github.com/JonMunkholm/stockbook/internal/tabular"
)

func newProfilesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "profiles",
		Short: "List import profiles and their columns",
		RunE: func(cmd *cobra.Command, args []string) error {
			infos := core.DescribeProfiles()
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(infos)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "PROFILE\tGROUP\tKEY\tREQUIRED\tAGGREGATE")
			for _, p := range infos {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", p.Key, p.Group, p.KeyColumn, strings.Join(p.Required, ", "), p.Aggregate)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print profiles as JSON")
	return cmd
}

func newTemplateCmd() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "template PROFILE",
		Short: "Write an empty XLSX template for a profile",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			profile, ok := core.Get(args[0])
			if !ok {
				return withCode(exitUsage, fmt.Errorf("%w: %s", core.ErrUnknownProfile, args[0]))
			}
			if out == "" {
				out = profile.Key + "-template.xlsx"
			}

			f, err := os.Create(filepath.Clean(out))
			if err != nil {
				return err
			}
			if err := tabular.WriteTemplate(f, profile); err != nil {
				f.Close()
				return err
			}
			if err := f.Close(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.ErrOrStderr(), "wrote", out)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output file (default PROFILE-template.xlsx)")
	return cmd
}
