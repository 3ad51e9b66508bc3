package main

import (
	"github.com/OpenCHAMI/pdusim/cmd"
)

func main() {
	cmd.Execute()
}
