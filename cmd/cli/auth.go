package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in with email and password and save the token",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		if email == "" {
			fmt.Print("Email: ")
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil {
				return fmt.Errorf("failed to read email: %w", err)
			}
			email = strings.TrimSpace(line)
		}

		password := os.Getenv("MARCHELUXE_PASSWORD")
		if password == "" {
			fmt.Print("Password: ")
			raw, err := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Println()
			if err != nil {
				return fmt.Errorf("failed to read password: %w", err)
			}
			password = string(raw)
		}

		res, err := newAPIClient(viper.GetString("api_url"), "").SignIn(email, password)
		if err != nil {
			return err
		}
		if err := saveToken(res.Token); err != nil {
			return err
		}
		if output == "json" {
			return printJSON(res)
		}
		success("Signed in as %s (token expires %s)", res.User.Email, res.ExpiresAt)
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Revoke the saved token",
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := requireToken()
		if err != nil {
			return err
		}
		if err := newAPIClient(viper.GetString("api_url"), token).SignOut(); err != nil {
			warn("Server sign-out failed: %v", err)
		}
		if err := saveToken(""); err != nil {
			return err
		}
		success("Signed out")
		return nil
	},
}

var whoamiCmd = &cobra.Command{
	Use:   "whoami",
	Short: "Show the signed-in profile",
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := requireToken()
		if err != nil {
			return err
		}
		me, err := newAPIClient(viper.GetString("api_url"), token).Me()
		if err != nil {
			return err
		}
		if output == "json" {
			return printJSON(me)
		}
		printProfiles([]profile{*me})
		return nil
	},
}

func init() {
	loginCmd.Flags().StringP("email", "e", "", "account email")
}
