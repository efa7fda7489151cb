package main

import "github.com/user/cisaudit/cmd"

func main() {
	cmd.Execute()
}
