// Command seed loads demo vendors and price sheets into a local database.
package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vzcourier/vzcourier-backend/internal/app"
	"github.com/vzcourier/vzcourier-backend/internal/pricesheet"
	"github.com/vzcourier/vzcourier-backend/internal/pricesheet/ingest"
)

type demoUser struct {
	ID         string
	Username   string
	VendorName string
}

var users = []demoUser{
	{ID: "admin-1", Username: "admin"},
	{ID: "vendor-north", Username: "north", VendorName: "North Logistics"},
	{ID: "vendor-south", Username: "south", VendorName: "South Express"},
}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := app.NewLogger(cfg)
	ctx := context.Background()

	deps, err := app.Open(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("open dependencies: %v", err)
	}
	defer deps.Close()

	fmt.Println("→ Seeding users...")
	if err := seedUsers(ctx, deps.Pool); err != nil {
		log.Fatalf("seed users: %v", err)
	}

	fmt.Println("→ Seeding price sheets...")
	if err := seedSheets(ctx, deps.PriceSheets); err != nil {
		log.Fatalf("seed price sheets: %v", err)
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func seedUsers(ctx context.Context, pool *pgxpool.Pool) error {
	batch := &pgx.Batch{}
	for _, u := range users {
		batch.Queue(`INSERT INTO users (id, username, vendor_name) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET username = EXCLUDED.username, vendor_name = EXCLUDED.vendor_name`,
			u.ID, u.Username, u.VendorName)
	}
	return pool.SendBatch(ctx, batch).Close()
}

// seedSheets goes through Import so reruns replace items instead of
// duplicating sheets.
func seedSheets(ctx context.Context, svc *pricesheet.Service) error {
	sheets := []pricesheet.ImportRequest{
		{
			SheetName:   "Standard Rates",
			Description: "Rates visible to every vendor",
			UploadedBy:  "admin-1",
			IsDefault:   true,
			Records: []ingest.Record{
				{ItemName: "Documents", Weight: "0.5kg", Rate: 850, Destination: "New York", Country: "United States", ServiceType: "Express"},
				{ItemName: "Documents", Weight: "0.5kg", Rate: 790, Destination: "London", Country: "United Kingdom", ServiceType: "Express"},
				{ItemName: "Parcel", Weight: "5kg", Rate: 4200, Destination: "Dubai", Country: "United Arab Emirates", ServiceType: "Economy"},
			},
		},
		{
			SheetName:       "North Logistics Contract",
			UploadedBy:      "admin-1",
			AssignedVendors: []string{"vendor-north"},
			Records: []ingest.Record{
				{ItemName: "Parcel", HSNCode: "4911", Weight: "1kg", Rate: 1150, Country: "Canada", ServiceType: "Priority"},
				{ItemName: "Parcel", HSNCode: "4911", Weight: "2kg", Rate: 1990, Country: "Canada", ServiceType: "Priority"},
			},
		},
	}
	for _, req := range sheets {
		res, err := svc.Import(ctx, req)
		if err != nil {
			return fmt.Errorf("%s: %w", req.SheetName, err)
		}
		fmt.Printf("  %s: %d items (created=%t)\n", res.Sheet.SheetName, len(res.Sheet.Items), res.Created)
	}
	return nil
}
