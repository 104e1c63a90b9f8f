// Command txrun runs SQL statements through the transaction runner, either
// against a database directly or through a txrunner server.
package main

import (
	"os"

	"github.com/spf13/afero"

	"github.com/kevin07696/txrunner/cmd/txrun/command"
)

func main() {
	root := command.GetRootCommand(afero.NewOsFs(), command.OpenDatabasePool)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
