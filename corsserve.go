// Serve a directory over HTTP with CORS enabled
package main

import (
	"github.com/corsserve/corsserve/cmd"
	_ "github.com/corsserve/corsserve/cmd/all" // import all commands
)

func main() {
	cmd.Main()
}
