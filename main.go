package main

import (
	"github.com/joho/godotenv"

	"school-device-issuance/cmd"
)

func main() {
	// Environment overrides may live in a local .env during development.
	godotenv.Load()

	cmd.Execute()
}
