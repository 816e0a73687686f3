package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/sudo-init-do/skillhub/internal/auth"
	"github.com/sudo-init-do/skillhub/internal/config"
)

// tokenutil mints identity tokens for local testing and operators, and
// revokes issued ones.
// Usage:
//
//	go run ./cmd/tokenutil -user <uuid> -role tasker -ttl 24h
//	go run ./cmd/tokenutil -revoke <jti> -ttl 24h
func main() {
	userID := flag.String("user", "", "user id (uuid) to put in the token")
	role := flag.String("role", "customer", "role claim: customer or tasker")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime, or how long a revocation is kept")
	jti := flag.String("jti", "", "token id; random when empty")
	revoke := flag.String("revoke", "", "token id to revoke in Redis instead of minting")
	flag.Parse()

	// Only the signing settings matter here; store settings may be absent.
	cfg, err := config.Load()
	if cfg.JWTSecret == "" {
		log.Fatalf("load config: %v", err)
	}

	if *revoke != "" {
		if cfg.RedisAddr == "" {
			log.Fatalf("REDIS_ADDR must be set to revoke tokens")
		}
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rdb.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := auth.NewRedisRevocations(rdb).Revoke(ctx, *revoke, *ttl); err != nil {
			log.Fatalf("revoke %s: %v", *revoke, err)
		}
		fmt.Printf("Token %s revoked for %s.\n", *revoke, *ttl)
		return
	}

	if _, err := uuid.Parse(*userID); err != nil {
		fmt.Fprintln(os.Stderr, "usage: go run ./cmd/tokenutil -user <uuid> -role customer|tasker [-ttl 24h] [-jti id]")
		os.Exit(2)
	}
	if !auth.Role(*role).Valid() {
		log.Fatalf("role must be customer or tasker, got %q", *role)
	}

	token, err := auth.NewTokenManager(auth.TokenConfig{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}).
		Issue(*userID, auth.Role(*role), *ttl, *jti)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Println(token)
}
