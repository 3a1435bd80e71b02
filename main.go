package main

import (
	"log"

	"github.com/bpforbes/flinstone/flag"
)

func main() {
	if err := flag.Parse(); err != nil {
		log.Fatal(err)
	}
}
