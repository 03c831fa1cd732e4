// Package all imports all the commands
package all

import (
	// Active commands
	_ "github.com/corsserve/corsserve/cmd/serve"
	_ "github.com/corsserve/corsserve/cmd/version"
)
