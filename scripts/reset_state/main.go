// reset_state rewrites the leg store as an empty ledger, keeping a
// timestamped backup of the previous file. Use it after manual broker
// cleanup when the on-disk state no longer matches reality.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/kwhitaker/zerogex/internal/ledger"
	"github.com/kwhitaker/zerogex/internal/models"
	"github.com/kwhitaker/zerogex/internal/storage"
)

func main() {
	path := flag.String("path", "data/legs.json", "Path to the leg store")
	noBackup := flag.Bool("no-backup", false, "Skip backing up the existing file")
	flag.Parse()

	store, err := storage.NewJSONStorage(*path)
	if err != nil {
		log.Fatalf("Failed to open leg store: %v", err)
	}

	prev, err := store.Load()
	if err != nil {
		log.Fatalf("Failed to read existing state: %v", err)
	}
	fmt.Printf("Current state: %d active, %d closed legs\n",
		len(prev.ActiveLegs), len(prev.ClosedLegs))

	if !*noBackup {
		if data, err := os.ReadFile(*path); err == nil {
			backup := fmt.Sprintf("%s.%s.bak", *path, time.Now().Format("20060102-150405"))
			if err := os.WriteFile(backup, data, 0o600); err != nil {
				log.Fatalf("Failed to write backup: %v", err)
			}
			fmt.Printf("Backed up previous state to %s\n", backup)
		} else if !os.IsNotExist(err) {
			log.Fatalf("Failed to read %s for backup: %v", *path, err)
		}
	}

	empty := &ledger.State{
		ActiveLegs:  []models.Leg{},
		ClosedLegs:  []models.Leg{},
		LastUpdated: time.Now().UTC(),
	}
	if err := store.Save(empty); err != nil {
		log.Fatalf("Failed to write empty state: %v", err)
	}
	fmt.Printf("Leg store reset: %s\n", *path)
}
