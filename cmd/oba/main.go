// Package main provides the entry point for the oba LDAP server CLI.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// errCommandFailed signals a non-zero exit without printing anything
// further; the leaf command already reported the failure.
var errCommandFailed = errors.New("command failed")

func main() {
	exitCode := run(os.Args)
	os.Exit(exitCode)
}

// run executes the CLI and returns an exit code.
// This is separated from main() to facilitate testing.
func run(args []string) int {
	if len(args) < 2 {
		printUsage(os.Stdout)
		return 1
	}

	root := newRootCmd()
	root.SetArgs(args[1:])
	if err := root.Execute(); err != nil {
		if !errors.Is(err, errCommandFailed) {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			fmt.Fprintln(os.Stderr, "Run 'oba help' for usage.")
		}
		return 1
	}
	return 0
}

// newRootCmd builds the command tree. Leaf commands keep their own flag
// handling, so cobra only routes subcommands and provides root-level help.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "oba",
		Short: "Oba LDAP directory server",
		Long:  "oba is an LDAP directory server with transactional storage,\nschema validation, and replication support.",
		RunE: func(cmd *cobra.Command, args []string) error {
			printUsage(os.Stdout)
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(
		passthrough("serve", "Start the LDAP server", serveCmd),
		passthrough("user", "Manage directory users", userCmd),
		passthrough("config", "Validate, generate, and inspect configuration", configCmd),
		passthrough("reload", "Signal a running server to reload its configuration", reloadCmd),
		passthrough("version", "Print version information", versionCmd),
	)

	return root
}

// passthrough wraps one of the int-returning command implementations as a
// cobra command. Flag parsing is left to the implementation so the flags
// keep their documented single-dash form.
func passthrough(use, short string, impl func(args []string) int) *cobra.Command {
	return &cobra.Command{
		Use:                use,
		Short:              short,
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if code := impl(args); code != 0 {
				return errCommandFailed
			}
			return nil
		},
	}
}
