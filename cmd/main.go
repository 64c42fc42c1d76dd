/*
 *  main.go
 *  cmd
 */

package main

import (
	logging "github.com/op/go-logging"
	"github.com/popgenlab/mhcflow"
)

// main is the entrypoint for the entire program, routes to commands
func main() {
	logging.SetBackend(mhcflow.BackendFormatter)
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
