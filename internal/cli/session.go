package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"finwise/internal/core"
)

func newLoginCommand(e *env) *cobra.Command {
	var (
		profile  core.UserProfile
		remember bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Set the user profile for this device",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := profile.Validate(); err != nil {
				return err
			}
			app, err := e.open(cmd)
			if err != nil {
				return err
			}
			if err := app.Store.SignIn(cmd.Context(), profile, remember); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s <%s>\n", profile.Name, profile.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&profile.Name, "name", "", "display name (required)")
	cmd.Flags().StringVar(&profile.Email, "email", "", "email address (required)")
	cmd.Flags().BoolVar(&remember, "remember", false, "restore this profile if the device data is lost")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("email")

	return cmd
}

func newLogoutCommand(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the user profile, including the remembered copy",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := e.open(cmd)
			if err != nil {
				return err
			}
			if err := app.Store.SignOut(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Signed out")
			return nil
		},
	}
}
