package main

import (
	"github.com/julienstroheker/wsrelay/relay/cmd"
)

func main() {
	cmd.Execute()
}
