package main

import "github.com/metal-toolbox/cfgcollector/cmd"

func main() {
	cmd.Execute()
}
