// Command devtoken prints an access token for a user id, signed with
// JWT_SECRET, for calling the API locally.
//
//	go run ./cmd/devtoken -user 42 -ttl 2h
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/iliyamo/venue-chat/internal/utils"
)

func main() {
	user := flag.Uint64("user", 1, "user id placed in the sub claim")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("missing required env var: JWT_SECRET")
	}
	if *user == 0 {
		log.Fatal("-user must be positive")
	}
	tok, err := utils.NewAccessToken(secret, *user, *ttl)
	if err != nil {
		log.Fatalf("sign token: %v", err)
	}
	fmt.Println(tok.Token)
	fmt.Fprintf(os.Stderr, "expires %s\n", tok.Exp.Format(time.RFC3339))
}
