// Command worksite manages the project ledger: spreadsheet imports, the local
// cache and the linked directory.
package main

import (
	"fmt"
	"os"
)

var exitFunc = os.Exit

func main() {
	exitFunc(run(os.Args[1:]))
}

func run(args []string) int {
	a := newApp()
	root := newRootCmd(a)
	root.SetArgs(args)
	err := root.Execute()
	if cerr := a.close(); err == nil {
		err = cerr
	}
	if err != nil {
		fmt.Fprintf(root.ErrOrStderr(), "Error: %v\n", err)
		return 1
	}
	return 0
}
