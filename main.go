package main

import "github.com/matichattellino/euphoria-iva/cmd"

func main() {
	cmd.Execute()
}
