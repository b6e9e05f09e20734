package main

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"
)

func client() *APIClient { return newAPIClient(baseURL, token) }

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the API is reachable",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := client().health(cmd.Context())
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(cmd.OutOrStdout(), h)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", h.Status, h.Time)
			return nil
		},
	}
}

// readPassword prompts on the terminal, or reads one line when stdin is
// not a terminal.
func readPassword(cmd *cobra.Command, prompt string) (string, error) {
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	if f, ok := cmd.InOrStdin().(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(cmd.ErrOrStderr())
		return string(b), err
	}
	line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newLoginCmd() *cobra.Command {
	var username, password string
	var noSave bool
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the bearer token",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if username == "" {
				return errors.New("--user is required")
			}
			if password == "" {
				p, err := readPassword(cmd, "Password: ")
				if err != nil {
					return err
				}
				password = p
			}
			tok, err := client().login(cmd.Context(), username, password)
			if err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}
			if noSave {
				fmt.Fprintln(cmd.OutOrStdout(), tok)
				return nil
			}
			viper.Set("token", tok)
			viper.Set("url", baseURL)
			path := configPath()
			if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
				return err
			}
			if err := viper.WriteConfigAs(path); err != nil {
				return fmt.Errorf("failed to save config: %w", err)
			}
			_ = os.Chmod(path, 0o600)
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s, token saved to %s\n", username, path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&username, "user", "u", "", "username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "password (prompted when omitted)")
	cmd.Flags().BoolVar(&noSave, "print", false, "print the token instead of saving it")
	return cmd
}

func newWhoamiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "Show the user the current token belongs to",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			u, err := client().me(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), u)
			return nil
		},
	}
}

// settingsFlags collects the optional settings shared by setup and
// settings set. Only flags the user actually passed end up in the body.
type settingsFlags struct {
	sshKeyFile   string
	backendPort  int
	fail2banFile string
}

func (f *settingsFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.sshKeyFile, "ssh-key-file", "", "file holding the SSH public key")
	cmd.Flags().IntVar(&f.backendPort, "backend-port", 0, "backend port (1-65535)")
	cmd.Flags().StringVar(&f.fail2banFile, "fail2ban-file", "", "YAML or JSON file with the fail2ban configuration")
}

func (f *settingsFlags) body(cmd *cobra.Command, into map[string]any) error {
	if cmd.Flags().Changed("ssh-key-file") {
		b, err := os.ReadFile(f.sshKeyFile)
		if err != nil {
			return err
		}
		into["sshKey"] = strings.TrimSpace(string(b))
	}
	if cmd.Flags().Changed("backend-port") {
		into["backendPort"] = f.backendPort
	}
	if cmd.Flags().Changed("fail2ban-file") {
		cfg, err := readObjectFile(f.fail2banFile)
		if err != nil {
			return err
		}
		into["fail2banConfig"] = cfg
	}
	return nil
}

// readObjectFile parses a YAML or JSON mapping.
func readObjectFile(path string) (map[string]any, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if json.Valid(b) {
		err = json.Unmarshal(b, &m)
	} else {
		err = yaml.Unmarshal(b, &m)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if m == nil {
		return nil, fmt.Errorf("%s: expected a mapping", path)
	}
	return m, nil
}

func newSetupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "setup",
		Short: "First-time setup",
	}

	status := &cobra.Command{
		Use:   "status",
		Short: "Show whether setup has been completed",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			done, err := client().setupStatus(cmd.Context())
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(cmd.OutOrStdout(), map[string]bool{"setupDone": done})
			}
			if done {
				fmt.Fprintln(cmd.OutOrStdout(), "setup completed")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "setup pending")
			}
			return nil
		},
	}

	var user, pass string
	var sf settingsFlags
	run := &cobra.Command{
		Use:   "run",
		Short: "Create the admin account and seed settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if pass == "" {
				p, err := readPassword(cmd, "Admin password: ")
				if err != nil {
					return err
				}
				pass = p
			}
			body := map[string]any{"adminUser": user, "adminPass": pass}
			if err := sf.body(cmd, body); err != nil {
				return err
			}
			if err := client().runSetup(cmd.Context(), body); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "setup completed, admin user %q\n", user)
			return nil
		},
	}
	run.Flags().StringVar(&user, "user", "", "admin username")
	run.Flags().StringVar(&pass, "password", "", "admin password (prompted when omitted)")
	sf.register(run)
	_ = run.MarkFlagRequired("user")

	cmd.AddCommand(status, run)
	return cmd
}

func newEnvCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "env",
		Short: "Manage environment variables",
	}

	ls := &cobra.Command{
		Use:     "ls",
		Aliases: []string{"list"},
		Short:   "List environment variables",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := client().listEnv(cmd.Context())
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(cmd.OutOrStdout(), items)
			}
			rows := make([][]string, 0, len(items))
			for _, ev := range items {
				rows = append(rows, []string{ev.ID, ev.Key, ev.Value})
			}
			return printTable(cmd.OutOrStdout(), []string{"ID", "KEY", "VALUE"}, rows)
		},
	}

	set := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Create or update a variable",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := client().setEnv(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(cmd.OutOrStdout(), ev)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s=%s (%s)\n", ev.Key, ev.Value, ev.ID)
			return nil
		},
	}

	rm := &cobra.Command{
		Use:     "rm ID",
		Aliases: []string{"delete"},
		Short:   "Delete a variable by id",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := client().deleteEnv(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", ev.Key)
			return nil
		},
	}

	cmd.AddCommand(ls, set, rm)
	return cmd
}

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "View or change server settings",
	}

	get := &cobra.Command{
		Use:   "get",
		Short: "Show the current settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := client().getSettings(cmd.Context())
			if err != nil {
				return err
			}
			if outputJSON {
				return printJSON(cmd.OutOrStdout(), s)
			}
			out := cmd.OutOrStdout()
			key, port := "-", "-"
			if s.SSHKey != nil {
				key = *s.SSHKey
			}
			if s.BackendPort != nil {
				port = fmt.Sprint(*s.BackendPort)
			}
			fmt.Fprintf(out, "SSH key:      %s\n", key)
			fmt.Fprintf(out, "Backend port: %s\n", port)
			if s.Fail2banConfig == nil {
				fmt.Fprintln(out, "Fail2ban:     -")
				return nil
			}
			b, err := yaml.Marshal(s.Fail2banConfig)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Fail2ban:\n%s", indent(string(b), "  "))
			return nil
		},
	}

	var sf settingsFlags
	var clearKey bool
	set := &cobra.Command{
		Use:   "set",
		Short: "Change individual settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			patch := map[string]any{}
			if err := sf.body(cmd, patch); err != nil {
				return err
			}
			if clearKey {
				patch["sshKey"] = nil
			}
			if len(patch) == 0 {
				return errors.New("nothing to change")
			}
			if err := client().putSettings(cmd.Context(), patch); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "settings updated")
			return nil
		},
	}
	sf.register(set)
	set.Flags().BoolVar(&clearKey, "clear-ssh-key", false, "remove the stored SSH key")
	set.MarkFlagsMutuallyExclusive("ssh-key-file", "clear-ssh-key")

	cmd.AddCommand(get, set)
	return cmd
}

func indent(s, prefix string) string {
	lines := strings.SplitAfter(s, "\n")
	var b strings.Builder
	for _, l := range lines {
		if l == "" {
			continue
		}
		b.WriteString(prefix)
		b.WriteString(l)
	}
	return b.String()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show loopactl version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "loopactl version %s\n", Version)
			fmt.Fprintf(cmd.OutOrStdout(), "  Build time: %s\n", BuildTime)
			fmt.Fprintf(cmd.OutOrStdout(), "  Git commit: %s\n", GitCommit)
		},
	}
}
