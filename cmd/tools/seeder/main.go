package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-pricing/internal/cartrule"
	"github.com/noah-isme/toko-pricing/internal/catalog"
	"github.com/noah-isme/toko-pricing/internal/pricing"
	"github.com/noah-isme/toko-pricing/internal/store"
)

type productSeed struct {
	ID      pricing.ProductID
	Name    string
	Price   string
	InStock bool
}

type ruleSeed struct {
	ID          pricing.RuleID
	Priority    int
	Percent     int64
	Amount      int64
	Restriction pricing.ProductID
	Gift        pricing.ProductID
}

var products = []productSeed{
	{1, "Mug", "19.812", true},
	{2, "Poster", "32.388", true},
	{3, "Notebook", "31.188", true},
	{4, "Sweater", "35.567", false},
}

var rules = []ruleSeed{
	{ID: 1, Priority: 1, Percent: 50},
	{ID: 2, Priority: 2, Percent: 50},
	{ID: 3, Priority: 3, Percent: 10},
	{ID: 4, Priority: 4, Amount: 5},
	{ID: 5, Priority: 5, Amount: 500},
	{ID: 6, Priority: 6, Amount: 10},
	{ID: 7, Priority: 7, Percent: 50},
	{ID: 8, Priority: 8, Amount: 5, Restriction: 2},
	{ID: 9, Priority: 8, Amount: 500, Restriction: 2},
	{ID: 10, Priority: 8, Percent: 50, Restriction: 2},
	{ID: 11, Priority: 8, Percent: 10, Restriction: 2},
	{ID: 12, Priority: 8, Percent: 10, Gift: 3},
	{ID: 13, Priority: 8, Percent: 10, Gift: 4},
}

func main() {
	taxRate := flag.String("tax-rate", "20", "tax rate in percent applied to every seeded product")
	flag.Parse()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}
	rate, err := decimal.NewFromString(*taxRate)
	if err != nil {
		log.Fatalf("Invalid tax rate %q: %v", *taxRate, err)
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open DB: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		log.Fatalf("Failed to ping DB: %v", err)
	}

	if err := store.Migrate(dbURL); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}

	mem := seedProducts(db, rate)
	seedRules(db, mem, time.Now())

	log.Println("Seeding completed successfully!")
}

func seedProducts(db *sql.DB, taxRate decimal.Decimal) *catalog.Memory {
	fmt.Println("Seeding Products...")
	mem := catalog.NewMemory()
	for _, p := range products {
		price := decimal.RequireFromString(p.Price)
		_, err := db.Exec(`
			INSERT INTO products (id, name, price_tax_incl, tax_rate, in_stock)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				price_tax_incl = EXCLUDED.price_tax_incl,
				tax_rate = EXCLUDED.tax_rate,
				in_stock = EXCLUDED.in_stock;
		`, p.ID, p.Name, price.String(), taxRate.String(), p.InStock)
		if err != nil {
			log.Printf("Failed to seed product %s: %v", p.Name, err)
			continue
		}
		mem.Put(pricing.Product{ID: p.ID, PriceTaxIncl: price, TaxRate: taxRate, InStock: p.InStock})
	}
	return mem
}

func seedRules(db *sql.DB, products catalog.Lookup, now time.Time) {
	fmt.Println("Seeding Cart Rules...")
	ctx := context.Background()
	for _, s := range rules {
		rule := s.rule(now)
		if err := cartrule.Validate(ctx, rule, products); err != nil {
			log.Printf("Skipping cart rule %d: %v", s.ID, err)
			continue
		}
		_, err := db.Exec(`
			INSERT INTO cart_rules (id, name, code, priority, reduction_percent, reduction_amount,
				reduction_tax, restriction_product_id, gift_product_id, date_from, date_to,
				quantity, quantity_per_user, active)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
			ON CONFLICT (id) DO NOTHING;
		`, rule.ID, rule.Name, rule.Code, rule.Priority, rule.ReductionPercent.String(),
			rule.ReductionAmount.String(), rule.AmountTaxIncluded, nullID(s.Restriction), nullID(s.Gift),
			rule.ValidFrom, rule.ValidTo, rule.QuantityRemaining, rule.QuantityPerUser, rule.Active)
		if err != nil {
			log.Printf("Failed to seed cart rule %d: %v", s.ID, err)
		}
	}
}

func (s ruleSeed) rule(now time.Time) pricing.Rule {
	r := pricing.Rule{
		ID:                s.ID,
		Name:              fmt.Sprintf("Rule %d", s.ID),
		Code:              fmt.Sprintf("RULE%02d", s.ID),
		Priority:          s.Priority,
		ReductionPercent:  decimal.NewFromInt(s.Percent),
		ReductionAmount:   decimal.NewFromInt(s.Amount),
		ValidFrom:         now.Add(-time.Second),
		ValidTo:           now.AddDate(1, 0, 0),
		QuantityRemaining: 1000,
		QuantityPerUser:   1000,
		Active:            true,
	}
	if s.Restriction != 0 {
		id := s.Restriction
		r.RestrictionProductID = &id
	}
	if s.Gift != 0 {
		id := s.Gift
		r.GiftProductID = &id
	}
	return r
}

func nullID(id pricing.ProductID) sql.NullInt64 {
	return sql.NullInt64{Int64: int64(id), Valid: id != 0}
}
