package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	// Version info (set by build)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// Global flags
	cfgFile    string
	baseURL    string
	token      string
	outputJSON bool
	verbose    bool
)

const defaultURL = "http://localhost:4000"

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "loopactl",
		Short: "Loopa servers panel command-line interface",
		Long: `loopactl talks to a running loopad API.

It can complete the first-time setup, log in, and manage environment
variables and server settings from the terminal.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			initConfig()
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/loopa/cli.yaml)")
	root.PersistentFlags().StringVar(&baseURL, "url", "", "API base URL")
	root.PersistentFlags().StringVar(&token, "token", "", "bearer token")
	root.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	_ = viper.BindPFlag("url", root.PersistentFlags().Lookup("url"))
	_ = viper.BindPFlag("token", root.PersistentFlags().Lookup("token"))

	root.AddCommand(
		newHealthCmd(),
		newLoginCmd(),
		newWhoamiCmd(),
		newSetupCmd(),
		newEnvCmd(),
		newSettingsCmd(),
		newVersionCmd(),
	)
	return root
}

func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "cli.yaml"
	}
	return filepath.Join(home, ".config", "loopa", "cli.yaml")
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("cli")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("$HOME/.config/loopa")
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("LOOPA")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}

	if baseURL == "" {
		baseURL = viper.GetString("url")
		if baseURL == "" {
			baseURL = defaultURL
		}
	}
	if token == "" {
		token = viper.GetString("token")
	}
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func printJSON(w io.Writer, data any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func printTable(w io.Writer, headers []string, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, h := range headers {
		if i > 0 {
			fmt.Fprint(tw, "\t")
		}
		fmt.Fprint(tw, h)
	}
	fmt.Fprintln(tw)
	for _, row := range rows {
		for i, col := range row {
			if i > 0 {
				fmt.Fprint(tw, "\t")
			}
			fmt.Fprint(tw, col)
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}
