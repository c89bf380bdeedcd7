package main

import (
	"log"

	"tckvault/cmd/tck/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		log.Fatal(err)
	}
}
