package main

import "github.com/nfrund/scriptops/cmd/scriptops/cmd"

func main() {
	cmd.Execute()
}
