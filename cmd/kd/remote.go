package main

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
)

var errUnknownRemote = errors.New("unknown remote")

// Remote is a named kd server. Addr is its gRPC address; Transport picks
// which of Addr and HTTPURL commands use while the remote is active.
type Remote struct {
	Addr      string `toml:"addr" json:"addr"`
	HTTPURL   string `toml:"http_url,omitempty" json:"http_url,omitempty"`
	Transport string `toml:"transport,omitempty" json:"transport,omitempty"`
	Token     string `toml:"token,omitempty" json:"token,omitempty"`
	NATSURL   string `toml:"nats_url,omitempty" json:"nats_url,omitempty"`
}

// remoteFile is the remotes.toml document under the user's state dir.
type remoteFile struct {
	path string

	Active  string            `toml:"active"`
	Remotes map[string]Remote `toml:"remotes"`
}

// remotesPath honors XDG_STATE_HOME and falls back to ~/.local/state.
func remotesPath() (string, error) {
	state := os.Getenv("XDG_STATE_HOME")
	if state == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		state = filepath.Join(home, ".local", "state")
	}
	return filepath.Join(state, "kd", "remotes.toml"), nil
}

// openRemotes reads the remotes file. A missing file is an empty one.
func openRemotes() (*remoteFile, error) {
	path, err := remotesPath()
	if err != nil {
		return nil, err
	}
	rf := &remoteFile{path: path}
	if _, err := toml.DecodeFile(path, rf); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if rf.Remotes == nil {
		rf.Remotes = map[string]Remote{}
	}
	return rf, nil
}

// save writes the file owner-only since remotes may carry tokens.
func (rf *remoteFile) save() error {
	if err := os.MkdirAll(filepath.Dir(rf.path), 0o700); err != nil {
		return err
	}
	f, err := os.OpenFile(rf.path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(rf); err != nil {
		f.Close()
		return fmt.Errorf("writing %s: %w", rf.path, err)
	}
	return f.Close()
}

func (rf *remoteFile) get(name string) (Remote, error) {
	r, ok := rf.Remotes[name]
	if !ok {
		return Remote{}, fmt.Errorf("%w %q", errUnknownRemote, name)
	}
	return r, nil
}

// activeRemote feeds the global flag defaults and is read once.
var activeRemote = sync.OnceValue(func() Remote {
	rf, err := openRemotes()
	if err != nil || rf.Active == "" {
		return Remote{}
	}
	return rf.Remotes[rf.Active]
})

// maskToken keeps the first eight characters of a token.
func maskToken(token string) string {
	if len(token) <= 8 {
		return token
	}
	return token[:8] + strings.Repeat("*", len(token)-8)
}

var remoteCmd = &cobra.Command{
	Use:               "remote",
	Short:             "Manage named kd servers",
	GroupID:           "system",
	PersistentPreRunE: noClient,
}

var remoteAddCmd = &cobra.Command{
	Use:   "add <name> <grpc-addr>",
	Short: "Add or replace a named remote",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		flags := cmd.Flags()
		r := Remote{Addr: args[1]}
		r.HTTPURL, _ = flags.GetString("http")
		r.Token, _ = flags.GetString("token")
		r.NATSURL, _ = flags.GetString("nats")
		r.Transport, _ = flags.GetString("via")
		switch r.Transport {
		case "":
			r.Transport = transportGRPC
		case transportGRPC:
		case transportHTTP:
			if r.HTTPURL == "" {
				return fmt.Errorf("--via http needs --http")
			}
		default:
			return fmt.Errorf("remote transport must be grpc or http, not %q", r.Transport)
		}

		rf, err := openRemotes()
		if err != nil {
			return err
		}
		rf.Remotes[args[0]] = r
		if err := rf.save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Added remote %s (%s %s)\n", args[0], r.Transport, r.Addr)
		return nil
	},
}

var remoteRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a named remote",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rf, err := openRemotes()
		if err != nil {
			return err
		}
		if _, err := rf.get(args[0]); err != nil {
			return err
		}
		delete(rf.Remotes, args[0])
		if rf.Active == args[0] {
			rf.Active = ""
		}
		if err := rf.save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Removed remote %s\n", args[0])
		return nil
	},
}

var remoteListCmd = &cobra.Command{
	Use:   "list",
	Short: "List remotes, starring the active one",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rf, err := openRemotes()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if jsonOutput {
			masked := make(map[string]Remote, len(rf.Remotes))
			for name, r := range rf.Remotes {
				r.Token = maskToken(r.Token)
				masked[name] = r
			}
			return printJSON(out, map[string]any{"active": rf.Active, "remotes": masked})
		}
		if len(rf.Remotes) == 0 {
			fmt.Fprintln(out, "No remotes.")
			return nil
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(tw, "  NAME\tTRANSPORT\tGRPC\tHTTP")
		for _, name := range slices.Sorted(maps.Keys(rf.Remotes)) {
			mark := "  "
			if name == rf.Active {
				mark = "* "
			}
			r := rf.Remotes[name]
			fmt.Fprintf(tw, "%s%s\t%s\t%s\t%s\n", mark, name, r.Transport, r.Addr, r.HTTPURL)
		}
		return tw.Flush()
	},
}

var remoteUseCmd = &cobra.Command{
	Use:   "use <name>",
	Short: "Make a remote the default for later commands",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rf, err := openRemotes()
		if err != nil {
			return err
		}
		if _, err := rf.get(args[0]); err != nil {
			return err
		}
		rf.Active = args[0]
		if err := rf.save(); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Using remote %s\n", args[0])
		return nil
	},
}

var remoteShowCmd = &cobra.Command{
	Use:   "show [<name>]",
	Short: "Show a remote, the active one by default",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rf, err := openRemotes()
		if err != nil {
			return err
		}
		name := rf.Active
		if len(args) == 1 {
			name = args[0]
		}
		if name == "" {
			return fmt.Errorf("no active remote (name one, or run kd remote use)")
		}
		r, err := rf.get(name)
		if err != nil {
			return err
		}
		r.Token = maskToken(r.Token)

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, r)
		}
		if name == rf.Active {
			name += " (active)"
		}
		tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		for _, row := range [][2]string{
			{"Name:", name},
			{"Transport:", r.Transport},
			{"gRPC:", r.Addr},
			{"HTTP:", r.HTTPURL},
			{"Token:", r.Token},
			{"NATS:", r.NATSURL},
		} {
			if row[1] != "" {
				fmt.Fprintf(tw, "%s\t%s\n", row[0], row[1])
			}
		}
		return tw.Flush()
	},
}

func init() {
	remoteAddCmd.Flags().String("http", "", "HTTP base URL of the server")
	remoteAddCmd.Flags().String("token", "", "bearer token")
	remoteAddCmd.Flags().String("nats", "", "NATS URL followed by kd watch")
	remoteAddCmd.Flags().String("via", "", "transport used while the remote is active: grpc (default) or http")

	remoteCmd.AddCommand(remoteAddCmd, remoteRemoveCmd, remoteListCmd, remoteUseCmd, remoteShowCmd)
}
