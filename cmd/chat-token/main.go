package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/weiawesome/wes-io-chat/internal/config"
	pkgconfig "github.com/weiawesome/wes-io-chat/pkg/config"
	"github.com/weiawesome/wes-io-chat/pkg/jwt"
)

func main() {
	userID := flag.Int64("user", 0, "User id the token is issued for")
	username := flag.String("name", "", "Username embedded in the token")
	ttl := flag.Duration("ttl", 0, "Token lifetime (defaults to auth.access_ttl)")
	flag.Parse()

	if *userID <= 0 {
		fmt.Fprintln(os.Stderr, "Usage: chat-token -user <id> [-name <username>] [-ttl 1h]")
		os.Exit(1)
	}

	if err := pkgconfig.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load .env: %v\n", err)
		os.Exit(1)
	}
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	lifetime := cfg.Auth.AccessTTL
	if *ttl > 0 {
		lifetime = *ttl
	}

	manager, err := jwt.NewManager(cfg.Auth.JWTSecret, lifetime, cfg.Auth.Issuer)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid auth config: %v\n", err)
		os.Exit(1)
	}

	token, exp, err := manager.GenerateAccessToken(*userID, *username)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to sign token: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(token)
	fmt.Fprintf(os.Stderr, "expires %s\n", time.Unix(exp, 0).UTC().Format(time.RFC3339))
}
