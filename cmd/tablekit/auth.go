package main

import (
	"fmt"
	"maps"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/koustreak/tablekit/internal/authconfig"
	"github.com/koustreak/tablekit/internal/errs"
)

var formFile string

var authCmd = &cobra.Command{
	Use:   "auth",
	Short: "Inspect and edit authentication provider settings",
}

var authGetCmd = &cobra.Command{
	Use:   "get [provider]",
	Short: "Print the auth settings, or one provider's form",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runAuthGet,
}

var authProvidersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List providers and whether they are enabled",
	Args:  cobra.NoArgs,
	RunE:  runAuthProviders,
}

var authSetCmd = &cobra.Command{
	Use:   "set <provider> -f form.yaml",
	Short: "Validate and save one provider's settings",
	Long: `Read a provider form from YAML, validate it and send only the keys that
differ from the current settings. Nothing is sent when no key changed.`,
	Args: cobra.ExactArgs(1),
	RunE: runAuthSet,
}

func init() {
	authSetCmd.Flags().StringVarP(&formFile, "file", "f", "", "YAML form with the provider's keys")
	_ = authSetCmd.MarkFlagRequired("file")

	authCmd.AddCommand(authGetCmd, authProvidersCmd, authSetCmd)
}

func requireAuth() (*authconfig.Service, error) {
	svc, err := authService()
	if err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, errs.New(errs.ErrKindInvalidInput, "auth API is not configured (TABLEKIT_AUTH_BASE_URL)")
	}
	return svc, nil
}

func runAuthGet(cmd *cobra.Command, args []string) error {
	svc, err := requireAuth()
	if err != nil {
		return err
	}
	var out authconfig.Config
	if len(args) == 1 {
		out, err = svc.Form(cmd.Context(), args[0])
	} else {
		out, err = svc.Config(cmd.Context())
	}
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), out)
}

func runAuthProviders(cmd *cobra.Command, _ []string) error {
	svc, err := requireAuth()
	if err != nil {
		return err
	}
	statuses, err := svc.Statuses(cmd.Context())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tENABLED")
	for _, s := range statuses {
		fmt.Fprintf(tw, "%s\t%s\t%t\n", s.ID, s.Title, s.Enabled)
	}
	return tw.Flush()
}

func runAuthSet(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(formFile)
	if err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "failed to read form", err)
	}
	var form authconfig.Config
	if err := yaml.Unmarshal(data, &form); err != nil {
		return errs.Wrap(errs.ErrKindInvalidInput, "failed to parse form", err)
	}

	svc, err := requireAuth()
	if err != nil {
		return err
	}
	res, err := svc.UpdateProvider(cmd.Context(), args[0], form)
	if err != nil {
		if fields := errs.FieldsOf(err); len(fields) > 0 {
			for _, k := range slices.Sorted(maps.Keys(fields)) {
				fmt.Fprintf(cmd.ErrOrStderr(), "  %s: %s\n", k, fields[k])
			}
		}
		return err
	}
	if !res.Changed {
		fmt.Fprintln(cmd.OutOrStdout(), "No changes to save.")
		return nil
	}
	return printJSON(cmd.OutOrStdout(), res.Payload)
}
