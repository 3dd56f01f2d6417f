package main

import "github.com/fakeyudi/shellguard/cmd"

func main() {
	cmd.Execute()
}
