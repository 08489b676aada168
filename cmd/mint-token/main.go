// Command mint-token prints a session token that lets a chat host send
// commands on behalf of one chat user.
//
//	SESSION_SECRET=... mint-token -user 12345 -ttl 720h
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"casdoorlink/core"

	"github.com/joho/godotenv"
)

func main() {
	userID := flag.String("user", "", "chat user id")
	ttl := flag.Duration("ttl", 24*time.Hour, "token lifetime")
	flag.Parse()

	_ = godotenv.Load()

	secret := os.Getenv("SESSION_SECRET")
	if secret == "" {
		log.Fatal("SESSION_SECRET is required")
	}
	if *userID == "" {
		log.Fatal("-user is required")
	}

	config := &core.Config{Session: core.SessionConfig{
		Secret:        secret,
		TokenDuration: int(ttl.Seconds()),
	}}

	token, err := core.GenerateSessionToken(*userID, config)
	if err != nil {
		log.Fatalf("Failed to sign token: %v", err)
	}
	fmt.Println(token)
}
