// Command sharechatd runs the sharechat server: a TCP chat where every
// connected client exchanges text lines and shares files through the server.
//
// Quickly launch server with command:
//
//	go run . serve --port 5000 --storage ./shared_files
package main

import (
	"fmt"
	"os"

	"github.com/wtask/sharechat/cmd/sharechatd/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
