// okb is the opencode-kanban scriptable CLI.
package main

import (
	"os"

	"github.com/opencode-kanban/okb/internal/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
