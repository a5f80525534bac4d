// Command journalload runs smoke and CRUD load tests against the journal
// API. See `journalload --help`.
package main

import (
	"os"

	"github.com/cfergile/journal-starter/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
