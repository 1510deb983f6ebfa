// Command seed fills the configured store with demo users and posts.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"smedia/internal/bootstrap"
	"smedia/internal/config"
	"smedia/internal/seed"
)

func main() {
	defaults := seed.DefaultOptions()
	numUsers := flag.Int("users", defaults.NumUsers, "Number of users to create")
	numPosts := flag.Int("posts", defaults.NumPosts, "Number of posts to create")
	maxDays := flag.Int("days", defaults.MaxDays, "Spread post timestamps over this many days")
	audience := flag.Int("audience", defaults.Audience, "Users that may interact with each post")
	randSeed := flag.Int64("rand", 0, "Random seed (0 picks one from the clock)")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	rt, err := bootstrap.InitRuntime(ctx, cfg, bootstrap.Options{ApplySchema: true})
	if err != nil {
		log.Fatalf("Failed to initialize backends: %v", err)
	}
	defer func() { _ = rt.Close(context.Background()) }()

	opts := seed.Options{
		NumUsers: *numUsers,
		NumPosts: *numPosts,
		MaxDays:  *maxDays,
		Audience: *audience,
		RandSeed: *randSeed,
	}
	log.Printf("Seeding %s store: %d users, %d posts", rt.Driver, opts.NumUsers, opts.NumPosts)

	res, err := seed.Seed(ctx, rt.Users, rt.Posts, opts)
	if err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
	log.Printf("Created %d users and %d posts", len(res.Users), len(res.Posts))
}
