// Command taskctl runs schema migrations and operator tasks against the
// tasktrack PostgreSQL database.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd(defaultApp()).Execute(); err != nil {
		os.Exit(1)
	}
}
