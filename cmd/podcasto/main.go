package main

import "github.com/NehoraiHadad/podcasto-engine/internal/cli"

func main() {
	cli.Execute()
}
