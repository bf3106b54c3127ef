package main

import (
	"fmt"

	"github.com/omerbl/trackd/internal/identity"
	"github.com/omerbl/trackd/internal/models"
	"github.com/spf13/cobra"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Set the local owner identity",
	RunE:  runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Clear the local owner identity",
	RunE:  runLogout,
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the local owner identity",
	RunE:  runWhoami,
}

var (
	loginOwner string
	loginName  string
	loginRate  float64
	loginTZ    string
)

func init() {
	loginCmd.Flags().StringVar(&loginOwner, "owner", "", "Owner ID (required)")
	loginCmd.Flags().StringVar(&loginName, "name", "", "Display name")
	loginCmd.Flags().Float64Var(&loginRate, "rate", 0, "Hourly rate snapshotted onto new entries")
	loginCmd.Flags().StringVar(&loginTZ, "tz", "", "IANA timezone for day/week boundaries")
	loginCmd.MarkFlagRequired("owner")
}

func runLogin(cmd *cobra.Command, args []string) error {
	ids, err := identity.NewManager("")
	if err != nil {
		return err
	}
	if err := ids.Set(identity.Identity{OwnerID: loginOwner, DisplayName: loginName}); err != nil {
		return err
	}

	// Push the profile so the daemon can snapshot the rate at start time.
	client := newGatewayClient(apiAddr)
	err = client.PutProfile(cmd.Context(), models.Profile{
		OwnerID:     loginOwner,
		DisplayName: loginName,
		HourlyRate:  loginRate,
		Timezone:    loginTZ,
	})
	if err != nil {
		fmt.Printf("Warning: could not store profile: %v\n", err)
	}

	fmt.Printf("Signed in as %s\n", loginOwner)
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	ids, err := identity.NewManager("")
	if err != nil {
		return err
	}
	if err := ids.Clear(); err != nil {
		return err
	}
	fmt.Println("Signed out")
	return nil
}

func runWhoami(cmd *cobra.Command, args []string) error {
	ids, err := identity.NewManager("")
	if err != nil {
		return err
	}
	id := ids.Current()
	if id == nil {
		fmt.Println("Not signed in")
		return nil
	}
	fmt.Printf("Owner: %s\n", id.OwnerID)
	if id.DisplayName != "" {
		fmt.Printf("Name:  %s\n", id.DisplayName)
	}
	return nil
}
