package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"
)

// env_ holds just the one setting this tool needs. It deliberately does
// not reuse config.Config: that struct requires DATABASE_URL and the
// rest of the service's settings, none of which an offline token-signing
// tool should have to supply.
type env_ struct {
	JWTSecret string `env:"JWT_SECRET,required"`
}

// main issues a service-bearer JWT for operators and CI jobs to call the
// HTTP API with, replacing the magic-link email flow the token's
// original home in this codebase used: Journey has no user accounts to
// verify, just a shared HMAC secret (middleware.Auth parses the result
// the same way either way).
func main() {
	subject := flag.String("subject", "", "subject (sub claim) identifying the bearer, e.g. an operator's name or CI job id")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	if *subject == "" {
		log.Fatal("issue-token: -subject is required")
	}

	var cfg env_
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("issue-token: %v", err)
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub": *subject,
		"iat": now.Unix(),
		"exp": now.Add(*ttl).Unix(),
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := t.SignedString([]byte(cfg.JWTSecret))
	if err != nil {
		log.Fatalf("issue-token: sign: %v", err)
	}

	fmt.Println(signed)
}
