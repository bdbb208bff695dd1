package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"time"

	"instagram-automation/internal/auth"
	"instagram-automation/internal/config"
	"instagram-automation/internal/instagram"
	"instagram-automation/internal/logger"
	"instagram-automation/internal/store"
	"instagram-automation/services"
)

func main() {
	var (
		count    int
		dryRun   bool
		operator string
		tokenTTL time.Duration
	)
	flag.IntVar(&count, "count", 10, "Number of simulation accounts to register")
	flag.BoolVar(&dryRun, "dry-run", false, "Print the generated accounts as JSON instead of storing them")
	flag.StringVar(&operator, "operator", "", "Also print an API token for this operator")
	flag.DurationVar(&tokenTTL, "token-ttl", auth.DefaultTokenTTL, "Lifetime of the printed API token")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.InitLogger(cfg)

	gen := newGenerator(rand.New(rand.NewSource(time.Now().UnixNano())))
	requests := gen.batch(count)

	if dryRun {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(requests); err != nil {
			log.Fatalf("Failed to encode accounts: %v", err)
		}
	} else if count > 0 {
		if cfg.StoreBackend != config.StoreMongo {
			log.Fatal("Seeding needs STORE_BACKEND=mongo, the memory store lives inside the server process")
		}
		mongoClient, err := config.ConnectMongoDB(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		st := store.NewMongoStore(mongoClient, cfg.DBName, nil)
		defer st.Close(context.Background())

		accounts := services.NewAccountService(st, instagram.NewClient(instagram.DefaultConfig()), services.ScheduleDefaults{
			Timezone:        cfg.DefaultTimezone,
			Slot1:           cfg.DefaultSlot1,
			Slot2:           cfg.DefaultSlot2,
			VarianceMinutes: cfg.DefaultVarianceMinutes,
		})

		created := 0
		for i, req := range requests {
			if _, err := accounts.Register(context.Background(), req); err != nil {
				fmt.Printf("   skipped %s: %v\n", req.Username, err)
				continue
			}
			created++
			if (i+1)%10 == 0 {
				fmt.Printf("   Registered %d/%d accounts...\n", i+1, count)
			}
		}
		fmt.Printf("✅ Registered %d simulation accounts\n", created)
	}

	if operator != "" {
		tokens, err := auth.NewTokens(cfg.JWTSecret, nil)
		if err != nil {
			log.Fatalf("Cannot issue token: %v", err)
		}
		token, expires, err := tokens.Issue(operator, tokenTTL)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Printf("\nAPI token for %s (expires %s):\n%s\n", operator, expires.Format(time.RFC3339), token)
	}
}
