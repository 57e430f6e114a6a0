package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	output  string
)

var rootCmd = &cobra.Command{
	Use:   "marcheluxe",
	Short: "Le Marché Luxe CLI - admin access to the marketplace API",
	Long: `marcheluxe talks to the Le Marché Luxe HTTP API.
Sign in once with "marcheluxe login"; the token is kept in ~/.marcheluxe.yaml.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.marcheluxe.yaml)")
	rootCmd.PersistentFlags().String("api", "http://localhost:8787", "API server URL")
	rootCmd.PersistentFlags().String("token", "", "auth token (overrides the saved one)")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "text", "output format: text or json")

	_ = viper.BindPFlag("api_url", rootCmd.PersistentFlags().Lookup("api"))
	_ = viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))

	rootCmd.AddCommand(loginCmd, logoutCmd, whoamiCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(conversationsCmd)
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return err
		}
		viper.SetConfigFile(filepath.Join(home, ".marcheluxe.yaml"))
	}
	viper.SetConfigType("yaml")

	// MARCHELUXE_API_URL, MARCHELUXE_TOKEN
	viper.SetEnvPrefix("MARCHELUXE")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}
	return nil
}

// saveToken persists the token next to the other settings
func saveToken(token string) error {
	viper.Set("token", token)
	path := viper.ConfigFileUsed()
	if err := viper.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return os.Chmod(path, 0600)
}

func requireToken() (string, error) {
	token := viper.GetString("token")
	if token == "" {
		return "", fmt.Errorf("not signed in: run \"marcheluxe login\" or set MARCHELUXE_TOKEN")
	}
	return token, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
