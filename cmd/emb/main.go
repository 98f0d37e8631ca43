// Package main is the entry point for the emb CLI tool.
package main

import (
	"github.com/hargabyte/emb/internal/cmd"
)

func main() {
	cmd.Execute()
}
