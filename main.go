package main

import "github.com/encodeous/pbgp/cmd"

func main() {
	cmd.Execute()
}
