package main

import "github.com/uteqlabs/wabridge/cmd"

func main() {
	cmd.Execute()
}
