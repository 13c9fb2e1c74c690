package main

import (
	"flag"
	"log"

	"huntdesk-ops/core/appbootstrap"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to the YAML config file")
	flag.Parse()

	if err := appbootstrap.Run(*configPath); err != nil {
		log.Fatalf("huntdesk-ops: %v", err)
	}
}
