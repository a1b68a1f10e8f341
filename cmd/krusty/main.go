package main

import (
	"os"

	"github.com/Zia-Rashid/Krusty-Krab/cmd/krusty/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
