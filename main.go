// Package main is the entry point for the idp binary: the stage workers
// (ocr, pipeline, push) and maintenance commands (migrate) that make up
// the document processing pipeline. See cli.RootCmd for the full
// command tree.
package main

import (
	"log"
	"os"

	"idp.evalgo.org/cli"
)

func main() {
	if err := cli.RootCmd.Execute(); err != nil {
		log.Println(err)
		os.Exit(1)
	}
}
