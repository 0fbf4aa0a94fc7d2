// cmd/migrate/main.go
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/unclebandit/outreach-scheduler/internal/config"
	"github.com/unclebandit/outreach-scheduler/internal/db"
)

func main() {
	down := flag.Int("down", 0, "roll back this many migrations instead of applying them")
	flag.Parse()

	_ = godotenv.Load(config.DefaultEnvFile)

	var pg config.PostgresConfig
	if err := envconfig.Process("", &pg); err != nil {
		fmt.Fprintln(os.Stderr, "failed to read DATABASE_URL:", err)
		os.Exit(1)
	}

	if *down > 0 {
		if err := db.Rollback(pg.URL, *down); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		fmt.Printf("Rolled back %d migration(s)\n", *down)
		return
	}

	if err := db.Migrate(pg.URL); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	fmt.Println("Database migrations applied successfully!")
}
