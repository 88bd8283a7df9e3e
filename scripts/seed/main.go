package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/dynaclean/dynaflow/internal/app"
	"github.com/dynaclean/dynaflow/internal/platform/db"
	"github.com/dynaclean/dynaflow/internal/shared"
	"github.com/dynaclean/dynaflow/internal/stock"
)

// Opening stock for a development database. Every row goes through the ledger
// so the zone and total summaries stay in step with the movements.
var openingStock = []struct {
	item string
	zone string
	qty  int
}{
	{"DC-SCRUB-700", "Delhi", 12},
	{"DC-SCRUB-700", "South", 6},
	{"DC-VAC-30L", "Delhi", 20},
	{"DC-VAC-30L", "South", 10},
	{"DC-VAC-30L", "Other", 4},
	{"DC-SWEEP-R1", "Delhi", 3},
	{"DC-PRESS-150", "South", 8},
	{"DC-PRESS-150", "Other", 2},
}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx := context.Background()
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	svc := stock.NewService(stock.NewRepository(pool), shared.NewAuditLogger(pool), stock.ServiceConfig{Zones: cfg.StockZones})

	fmt.Println("→ Seeding opening stock...")
	for _, row := range openingStock {
		m, err := svc.RecordMovement(ctx, stock.MovementInput{
			ItemCode:  row.item,
			Zone:      row.zone,
			Delta:     row.qty,
			Kind:      stock.MovementIn,
			Reference: "seed",
			Note:      "opening stock",
			Actor:     "seed",
		})
		if err != nil {
			log.Fatalf("seed %s/%s: %v", row.item, row.zone, err)
		}
		fmt.Printf("  %s %-6s +%d (movement %d)\n", m.ItemCode, m.Zone, m.Delta, m.ID)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}
