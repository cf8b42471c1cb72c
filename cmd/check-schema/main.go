package main

import (
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"txstatus-backend/internal/config"

	_ "github.com/lib/pq"
)

// expectedColumns minimum varchar widths for transaction_records
var expectedColumns = map[string]int64{
	"tx_hash":       66,
	"from_address":  66,
	"to_address":    66,
	"amount":        78,
	"token_address": 66,
	"status":        16,
}

func main() {
	configPath := flag.String("config", "", "config file (default config.local.yaml or config.yaml)")
	flag.Parse()

	fmt.Println("🔍 Checking transaction_records schema...")
	fmt.Println(strings.Repeat("=", 60))

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfg.Database.Driver != "postgres" {
		log.Fatalf("check-schema only supports postgres, configured driver is %q", cfg.Database.Driver)
	}

	sqlDB, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer sqlDB.Close()
	if err := sqlDB.Ping(); err != nil {
		log.Fatalf("Failed to connect database: %v", err)
	}

	var problems []string

	// 1. Column widths
	fmt.Println("\n📋 Column widths:")
	rows, err := sqlDB.Query(`
		SELECT column_name, data_type, character_maximum_length
		FROM information_schema.columns
		WHERE table_schema = 'public'
		AND table_name = 'transaction_records'
		ORDER BY column_name
	`)
	if err != nil {
		log.Fatalf("Failed to query columns: %v", err)
	}
	seen := make(map[string]bool)
	for rows.Next() {
		var columnName, dataType string
		var maxLength sql.NullInt64
		if err := rows.Scan(&columnName, &dataType, &maxLength); err != nil {
			log.Printf("Error scanning row: %v", err)
			continue
		}
		seen[columnName] = true

		want, checked := expectedColumns[columnName]
		if !checked {
			continue
		}
		switch {
		case !maxLength.Valid:
			fmt.Printf("  %s: %s - ✅ OK (unbounded)\n", columnName, dataType)
		case maxLength.Int64 < want:
			fmt.Printf("  %s: VARCHAR(%d) - ❌ NEEDS VARCHAR(%d)\n", columnName, maxLength.Int64, want)
			problems = append(problems, fmt.Sprintf("%s is VARCHAR(%d), need %d", columnName, maxLength.Int64, want))
		default:
			fmt.Printf("  %s: VARCHAR(%d) - ✅ OK\n", columnName, maxLength.Int64)
		}
	}
	rows.Close()

	if len(seen) == 0 {
		fmt.Println("  ❌ transaction_records table not found")
		os.Exit(1)
	}
	for _, column := range []string{"meta_is_pending", "meta_network_id", "meta_submitted_by", "meta_diag_error"} {
		if !seen[column] {
			problems = append(problems, "missing column "+column)
		}
	}

	// 2. Sparse-unique tx_hash index
	fmt.Println("\n📋 tx_hash index:")
	var indexDef string
	err = sqlDB.QueryRow(`
		SELECT indexdef FROM pg_indexes
		WHERE schemaname = 'public'
		AND tablename = 'transaction_records'
		AND indexname = 'idx_transaction_records_tx_hash'
	`).Scan(&indexDef)
	switch {
	case err == sql.ErrNoRows:
		fmt.Println("  ❌ idx_transaction_records_tx_hash missing")
		problems = append(problems, "tx_hash unique index missing")
	case err != nil:
		log.Fatalf("Failed to query indexes: %v", err)
	default:
		fmt.Printf("  %s\n", indexDef)
		upper := strings.ToUpper(indexDef)
		if !strings.Contains(upper, "UNIQUE") || !strings.Contains(upper, "WHERE") {
			problems = append(problems, "tx_hash index must be UNIQUE with a WHERE clause")
		}
	}

	// 3. Summary
	fmt.Println("\n📊 Summary:")
	if len(problems) > 0 {
		fmt.Println("  ❌ Schema problems:")
		for _, p := range problems {
			fmt.Printf("    - %s\n", p)
		}
		os.Exit(1)
	}
	fmt.Println("  ✅ transaction_records schema is correct")
}
