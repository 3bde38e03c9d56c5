package main

import "github.com/tilde-sec/threatsift/internal/cli"

func main() {
	cli.Execute()
}
