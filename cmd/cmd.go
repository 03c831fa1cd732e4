// Package cmd implements the corsserve command
//
// It is in a sub package so it's internals can be re-used elsewhere
package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"runtime"

	"github.com/corsserve/corsserve/fs"
	"github.com/corsserve/corsserve/fs/config/flags"
	"github.com/corsserve/corsserve/lib/buildinfo"
	"github.com/corsserve/corsserve/lib/exitcode"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// Globals
var (
	// Flags
	verbose    int
	quiet      bool
	logLevel   = fs.LogLevelNotice
	useJSONLog bool
	version    bool
	// DefaultCommand is run when no command is named on the command line
	DefaultCommand *cobra.Command
	// Errors
	errorCommandNotFound    = errors.New("command not found")
	errorNotEnoughArguments = errors.New("not enough arguments")
	errorTooManyArguments   = errors.New("too many arguments")
	// osExit is os.Exit, swapped in tests
	osExit = os.Exit
)

// Root is the main corsserve command
var Root = &cobra.Command{
	Use:   "corsserve",
	Short: "Serve a directory over HTTP with CORS enabled",
	Long: `corsserve serves the files under a directory over HTTP, adding an
Access-Control-Allow-Origin header to every response so that pages
loaded from other origins (eg a 3-D model viewer) can fetch them.

Files ending in .glb are served as model/gltf-binary.  Every other
extension uses the platform MIME table.

Run without a command it runs "corsserve serve" with the flags given.
`,
	SilenceUsage: true,
}

// runRoot is Root's Run. It is set in init as it refers to Root.
func runRoot(command *cobra.Command, args []string) {
	if version {
		ShowVersion()
		osExit(exitcode.Success)
		return
	}
	_ = command.Usage()
	if len(args) > 0 {
		_, _ = fmt.Fprintf(os.Stderr, "Command not found.\n")
	}
	resolveExitCode(errorCommandNotFound)
}

func init() {
	Root.Run = runRoot
	pflags := Root.PersistentFlags()
	flags.CountVarP(pflags, &verbose, "verbose", "v", "Print lots more stuff (repeat for more)")
	flags.BoolVarP(pflags, &quiet, "quiet", "q", false, "Print as little stuff as possible")
	flags.FVarP(pflags, &logLevel, "log-level", "", "Log level DEBUG|INFO|NOTICE|ERROR")
	flags.BoolVarP(pflags, &useJSONLog, "use-json-log", "", false, "Use json log format")
	Root.Flags().BoolVarP(&version, "version", "V", false, "Print the version number")
	cobra.OnInitialize(initConfig)
}

// ShowVersion prints the version to the root command's output
func ShowVersion() {
	fprintVersion(Root.OutOrStdout())
}

func fprintVersion(w io.Writer) {
	osVersion, osKernel := buildinfo.GetOSVersion()
	linking, tagString := buildinfo.GetLinkingAndTags()

	_, _ = fmt.Fprintf(w, "corsserve %s\n", fs.Version)
	_, _ = fmt.Fprintf(w, "- os/version: %s\n", osVersion)
	_, _ = fmt.Fprintf(w, "- os/kernel: %s\n", osKernel)
	_, _ = fmt.Fprintf(w, "- os/type: %s\n", runtime.GOOS)
	_, _ = fmt.Fprintf(w, "- os/arch: %s\n", runtime.GOARCH)
	_, _ = fmt.Fprintf(w, "- go/version: %s\n", runtime.Version())
	_, _ = fmt.Fprintf(w, "- go/linking: %s\n", linking)
	_, _ = fmt.Fprintf(w, "- go/tags: %s\n", tagString)
}

// Run the function and exit with the status matching its error
func Run(cmd *cobra.Command, f func() error) {
	err := f()
	if err != nil {
		fs.Errorf(nil, "Failed to %s: %v", cmd.Name(), err)
	}
	resolveExitCode(err)
}

// CheckArgs checks there are enough arguments and prints a message if not
func CheckArgs(MinArgs, MaxArgs int, cmd *cobra.Command, args []string) {
	if len(args) < MinArgs {
		_ = cmd.Usage()
		_, _ = fmt.Fprintf(os.Stderr, "Command %s needs %d arguments minimum: you provided %d non flag arguments: %q\n", cmd.Name(), MinArgs, len(args), args)
		resolveExitCode(errorNotEnoughArguments)
	} else if len(args) > MaxArgs {
		_ = cmd.Usage()
		_, _ = fmt.Fprintf(os.Stderr, "Command %s needs %d arguments maximum: you provided %d non flag arguments: %q\n", cmd.Name(), MaxArgs, len(args), args)
		resolveExitCode(errorTooManyArguments)
	}
}

// setLogLevel works out the log level from -v, -q and --log-level
func setLogLevel(ci *fs.ConfigInfo, flagSet *pflag.FlagSet) error {
	if verbose >= 1 && quiet {
		return errors.New("can't set -v and -q")
	}
	if flagSet.Changed("log-level") {
		if verbose >= 1 || quiet {
			return errors.New("can't set -v or -q with --log-level")
		}
		ci.LogLevel = logLevel
		return nil
	}
	switch {
	case verbose >= 2:
		ci.LogLevel = fs.LogLevelDebug
	case verbose == 1:
		ci.LogLevel = fs.LogLevelInfo
	case quiet:
		ci.LogLevel = fs.LogLevelError
	default:
		ci.LogLevel = fs.LogLevelNotice
	}
	return nil
}

// initConfig is run by cobra after initialising the flags
func initConfig() {
	ci := fs.GetConfig(context.Background())
	if err := setLogLevel(ci, Root.PersistentFlags()); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
	ci.UseJSONLog = useJSONLog

	// Start the logger
	fs.InitLogging(ci, nil)

	// Write the args for debug purposes
	fs.Debugf("corsserve", "Version %q starting with parameters %q", fs.Version, os.Args)
}

// exitCode maps the error returned by a command onto an exit status
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitcode.Success
	case errors.Is(err, errorCommandNotFound),
		errors.Is(err, errorNotEnoughArguments),
		errors.Is(err, errorTooManyArguments):
		return exitcode.UsageError
	}
	return exitcode.UncategorizedError
}

func resolveExitCode(err error) {
	osExit(exitCode(err))
}

// defaultArgs inserts the name of DefaultCommand in front of args if
// they don't name a command already
func defaultArgs(args []string) []string {
	if DefaultCommand == nil {
		return args
	}
	for _, arg := range args {
		switch arg {
		case "--version", "-V", "--help", "-h":
			return args
		}
	}
	found, _, err := Root.Find(args)
	if err != nil || found != Root {
		return args
	}
	return append([]string{DefaultCommand.Name()}, args...)
}

// Main runs corsserve interpreting flags and commands out of os.Args
func Main() {
	Root.SetArgs(defaultArgs(os.Args[1:]))
	if err := Root.Execute(); err != nil {
		log.Printf("Fatal error: %v", err)
		osExit(exitcode.UsageError)
	}
}
