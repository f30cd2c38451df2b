package main

import (
	"log"

	"github.com/joho/godotenv"

	"pledgepay/config"
	"pledgepay/pkg/database"
)

// Applies the SQL migrations and exits. Useful for CI and for bootstrapping
// a database without starting the API.
func main() {
	_ = godotenv.Load()

	cfg := config.LoadConfig()

	if err := database.Connect(cfg); err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	if err := database.ApplyRawMigrations("migrations"); err != nil {
		log.Fatalf("Failed to apply migrations: %v", err)
	}

	log.Println("Migrations applied")
}
