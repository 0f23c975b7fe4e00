package commands

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Rodney-akong/Alx-DjangoLearnLab/internal/model"
)

var (
	username string
	email    string
	password string
)

var userCmd = &cobra.Command{
	Use:   "user",
	Short: "Manage user accounts",
}

var userCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a user together with its profile",
	Example: `  server user create --username alice --email alice@example.com --password 's3cret-pass'`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		u, err := st.CreateUser(cmd.Context(), model.RegisterInput{
			Username:  username,
			Email:     email,
			Password1: password,
			Password2: password,
		})
		if err != nil {
			return errors.Wrap(err, "error creating user")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "created user %s (id %d)\n", u.Username, u.ID)
		return nil
	},
}

var userDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete a user and everything it owns",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		st, err := openStore(cmd.Context(), cfg, logger)
		if err != nil {
			return err
		}
		defer st.Close()

		u, err := st.UserByUsername(cmd.Context(), username)
		if err != nil {
			return errors.Wrapf(err, "error finding user %q", username)
		}
		if err := st.DeleteUser(cmd.Context(), u.ID); err != nil {
			return errors.Wrap(err, "error deleting user")
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted user %s\n", u.Username)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(userCmd)
	userCmd.AddCommand(userCreateCmd, userDeleteCmd)

	userCreateCmd.Flags().StringVar(&username, "username", "", "Username (required)")
	userCreateCmd.Flags().StringVar(&email, "email", "", "Email address (required)")
	userCreateCmd.Flags().StringVar(&password, "password", "", "Password (required)")
	_ = userCreateCmd.MarkFlagRequired("username")
	_ = userCreateCmd.MarkFlagRequired("email")
	_ = userCreateCmd.MarkFlagRequired("password")

	userDeleteCmd.Flags().StringVar(&username, "username", "", "Username (required)")
	_ = userDeleteCmd.MarkFlagRequired("username")
}
