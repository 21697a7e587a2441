// powledger is a command-line front end to a single-node proof-of-work
// ledger. Every command opens the saved ledger, acts on it and saves it
// back.
//
// Usage:
//
//	powledger init
//	powledger user create alice
//	powledger fund alice 100
//	powledger send alice bob 25 --fee 0.5
//	powledger mine
//	powledger chain validate
//
// The same ledger can be served over JSON-RPC and driven remotely:
//
//	powledger serve --rpc-port 8645
//	powledger rpc chain_getInfo
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
