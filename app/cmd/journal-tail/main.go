// Command journal-tail prints the newest turns of the processing journal
// as JSON lines.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"

	"gatekeeper/app/core/journal"
)

func main() {
	dataDir := flag.String("db", "output/db", "journal database directory")
	limit := flag.Int("n", 20, "number of turns to print")
	flag.Parse()

	db, err := journal.NewSQLiteDB(*dataDir)
	if err != nil {
		log.Fatalf("Failed to open journal: %v", err)
	}
	defer db.Close()

	turns, err := journal.NewRecorder(db).Recent(context.Background(), *limit)
	if err != nil {
		log.Fatalf("Failed to read journal: %v", err)
	}

	encoder := json.NewEncoder(os.Stdout)
	for _, turn := range turns {
		if err := encoder.Encode(turn); err != nil {
			log.Fatalf("Failed to encode turn: %v", err)
		}
	}
	if len(turns) == 0 {
		fmt.Println("journal is empty")
	}
}
