// Command ragdemo is the entry point for the retrieval-augmented question
// answering demo. It builds a vector index from local documents and answers
// questions over it from an interactive prompt or an HTTP API.
package main

import (
	"fmt"
	"os"

	"github.com/54b3r/ragdemo-go/cmd/ragdemo/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
