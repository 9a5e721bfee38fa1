package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/yanun0323/errors"
)

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Invalidate the broker session and clear stored credentials",
	Long: `Logout revokes the active token with the broker and removes the stored
session record and cached token. The next run performs a fresh login.`,
	RunE: runLogout,
}

func init() {
	rootCmd.AddCommand(logoutCmd)
}

func runLogout(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	c, err := buildCore(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if err := c.auth.Logout(ctx); err != nil {
		return errors.Wrap(err, "logout")
	}
	fmt.Println("Session invalidated and stored credentials cleared.")
	return nil
}
