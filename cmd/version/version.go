// Package version provides the version command.
package version

import (
	"github.com/corsserve/corsserve/cmd"
	"github.com/spf13/cobra"
)

func init() {
	cmd.Root.AddCommand(commandDefinition)
}

var commandDefinition = &cobra.Command{
	Use:   "version",
	Short: `Show the version number.`,
	Long: `Show the corsserve version number, the go version, the build target
OS and architecture, the runtime OS and kernel version and bitness,
build tags and the type of executable (static or dynamic).

For example:

    $ corsserve version
    corsserve v1.0.0
    - os/version: ubuntu 22.04 (64 bit)
    - os/kernel: 5.15.0-76-generic (x86_64)
    - os/type: linux
    - os/arch: amd64
    - go/version: go1.21.0
    - go/linking: static
    - go/tags: none

"corsserve --version" prints the same.
`,
	Run: func(command *cobra.Command, args []string) {
		cmd.CheckArgs(0, 0, command, args)
		cmd.ShowVersion()
	},
}
