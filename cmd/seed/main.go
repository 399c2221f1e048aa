package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"calendar-ai-billing/internal/config"
	"calendar-ai-billing/internal/domain/model"
	"calendar-ai-billing/internal/domain/ports/repository"
	pg "calendar-ai-billing/internal/infra/db/postgres"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*cfgPath, false)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database.URL, 4)
	if err != nil {
		log.Fatalf("postgres: %v", err)
	}
	defer pool.Close()

	planRepo := pg.NewPlanRepo(pool)

	existing, err := planRepo.ListActive(ctx, repository.NoTX)
	if err != nil {
		log.Fatalf("list plans: %v", err)
	}
	if len(existing) > 0 {
		fmt.Printf("%d plans already present. No changes.\n", len(existing))
		for _, p := range existing {
			fmt.Printf("  - %s (%s, price=%d cents)\n", p.Name, p.Slug, p.PriceCents)
		}
		return
	}

	credits := func(n int64) *int64 { return &n }
	seed := []*model.Plan{
		{
			Slug:            cfg.Entitlement.FreePlanSlug,
			Name:            "Starter",
			PriceCents:      0,
			Interval:        model.IntervalMonth,
			CreditAllotment: credits(50),
			Features:        []string{"calendar_sync"},
			IsFree:          true,
			DisplayOrder:    0,
		},
		{
			Slug:            "pro",
			Name:            "Pro",
			PriceCents:      2000,
			Interval:        model.IntervalMonth,
			CreditAllotment: credits(2000),
			Features:        []string{"calendar_sync", "ai_chat", "voice"},
			TrialDays:       14,
			DisplayOrder:    1,
		},
		{
			Slug:            "pro-yearly",
			Name:            "Pro (annual)",
			PriceCents:      20000,
			Interval:        model.IntervalYear,
			CreditAllotment: credits(2000),
			Features:        []string{"calendar_sync", "ai_chat", "voice"},
			TrialDays:       14,
			DisplayOrder:    2,
		},
		{
			Slug:         "unlimited",
			Name:         "Unlimited",
			PriceCents:   5000,
			Interval:     model.IntervalMonth,
			Features:     []string{"calendar_sync", "ai_chat", "voice", "priority_support"},
			DisplayOrder: 3,
		},
		{
			Slug:            "credits-500",
			Name:            "500 credit pack",
			PriceCents:      500,
			Interval:        model.IntervalOneTime,
			CreditAllotment: credits(500),
			DisplayOrder:    10,
		},
	}

	for _, p := range seed {
		if err := planRepo.Save(ctx, repository.NoTX, p); err != nil {
			log.Fatalf("save plan %q: %v", p.Slug, err)
		}
		fmt.Printf("seeded: %s (%s, price=%d cents)\n", p.Name, p.Slug, p.PriceCents)
	}
	fmt.Println("seeding complete")
}
