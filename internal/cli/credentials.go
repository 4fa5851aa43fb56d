package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/robert-malhotra/wekeo-mosaic/internal/wekeo"
)

func credentialsCmd(a *app) *cobra.Command {
	var path string

	c := &cobra.Command{
		Use:   "credentials",
		Short: "Manage the HDA credentials file (~/.hdarc)",
	}
	c.PersistentFlags().StringVar(&path, "path", "", "Credentials file (default: WEKEO_HDARC or ~/.hdarc)")

	filePath := func() (string, error) {
		if path != "" {
			return path, nil
		}
		return hdarcPath(a.cfg.WEkEO)
	}

	var user string
	var password string
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write the credentials file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := filePath()
			if err != nil {
				return err
			}
			if err := wekeo.WriteHDARC(p, wekeo.Credentials{User: user, Password: password}); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "credentials written to %s\n", p)
			return nil
		},
	}
	initCmd.Flags().StringVar(&user, "user", "", "HDA user (required)")
	initCmd.Flags().StringVar(&password, "password", "", "HDA password (required)")
	_ = initCmd.MarkFlagRequired("user")
	_ = initCmd.MarkFlagRequired("password")

	removeCmd := &cobra.Command{
		Use:   "remove",
		Short: "Delete the credentials file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := filePath()
			if err != nil {
				return err
			}
			if err := wekeo.RemoveHDARC(p); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", p)
			return nil
		},
	}

	cleanCmd := &cobra.Command{
		Use:   "clean",
		Short: "Drop legacy url entries from the credentials file",
		RunE: func(cmd *cobra.Command, _ []string) error {
			p, err := filePath()
			if err != nil {
				return err
			}
			changed, err := wekeo.CleanHDARC(p)
			if err != nil {
				return err
			}
			if changed {
				fmt.Fprintf(cmd.OutOrStdout(), "cleaned %s\n", p)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already clean\n", p)
			}
			return nil
		},
	}

	c.AddCommand(initCmd, removeCmd, cleanCmd)
	return c
}

func datasetsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "datasets",
		Short: "List dataset aliases and their products",
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := cmd.OutOrStdout()
			for _, d := range a.datasets.All() {
				fmt.Fprintf(w, "%-10s %s\n", d.Alias, d.ID)
				if len(d.Products) > 0 {
					fmt.Fprintf(w, "           products: %v\n", d.Products)
				}
			}
			return nil
		},
	}
}
