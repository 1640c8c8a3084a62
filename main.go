package main

import (
	"github.com/loopwire/transparency/cmd"
	"github.com/loopwire/transparency/internal/recovery"
)

func main() {
	defer recovery.HandlePanic()
	cmd.Execute()
}
