// Command sitesync mirrors an Airtable base into the local content snapshot.
package main

import "github.com/mesh-intelligence/sitesync/internal/cli"

func main() {
	cli.Execute()
}
