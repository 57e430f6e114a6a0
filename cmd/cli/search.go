package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var searchCmd = &cobra.Command{
	Use:   "search",
	Short: "Search the marketplace",
}

var searchUsersCmd = &cobra.Command{
	Use:   "users <query>",
	Short: "Search users by email, name or username",
	Long: `Search users (at least 3 characters).

Examples:
  marcheluxe search users "dupont"
  marcheluxe search users "@gmail.com" -o json`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := requireToken()
		if err != nil {
			return err
		}
		results, err := newAPIClient(viper.GetString("api_url"), token).SearchProfiles(args[0])
		if err != nil {
			return err
		}
		if output == "json" {
			return printJSON(results)
		}
		if len(results) == 0 {
			fmt.Println("No users found")
			return nil
		}
		printProfiles(results)
		return nil
	},
}

func init() {
	searchCmd.AddCommand(searchUsersCmd)
}
