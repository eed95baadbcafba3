package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/leadership-finder/internal/leadership"
)

func newDiscoverCmd() *cobra.Command {
	var company leadership.Company
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Find the leadership of one company",
		Example: `  leadfinder discover --name "Acme Industries" --url acme.example
  leadfinder discover --url https://acme.example --id crm-1042`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(company.Website) == "" {
				return errors.New("--url is required")
			}
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			res := appInstance.Discover(cmd.Context(), company)

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(res); err != nil {
				return fmt.Errorf("write result: %w", err)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&company.Name, "name", "", "company name")
	cmd.Flags().StringVar(&company.Website, "url", "", "company website")
	cmd.Flags().StringVar(&company.ID, "id", "", "optional caller-side company id")
	return cmd
}
