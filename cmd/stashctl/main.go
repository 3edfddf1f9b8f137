// Command stashctl inspects the cache configuration of an application.
//
//	stashctl resolve --config app.yaml
//	stashctl resolve profile orders --config app.yaml
//	stashctl check profile --config app.yaml
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
