// Command csvscenario expands CSV instruction templates and runs them
// against Chrome.
package main

import (
	"os"

	"github.com/koki-mus/csvscenario/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
