package migrations

import (
	"database/sql"
	"log"

	_ "github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

const migrationDir = "./migrations"

// Run применяет все невыполненные миграции перед стартом сервера
func Run(postgresConn string) {
	db, err := sql.Open("postgres", postgresConn)
	if err != nil {
		log.Fatalf("migrations: cannot open db: %v", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		log.Fatalf("migrations: cannot set dialect: %v", err)
	}

	log.Printf("Applying migrations from %s", migrationDir)
	if err := goose.Up(db, migrationDir); err != nil {
		log.Fatalf("migrations: %v", err)
	}
}
