// devtoken выпускает bearer-токен для локальной разработки тем же секретом, что проверяет API.
//
//	go run ./services/devtoken -sub alice -name "Alice"
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/teamchat/internal/auth"
	"github.com/teamchat/internal/config"
	"github.com/teamchat/internal/logger"
	"github.com/teamchat/internal/model"
)

func main() {
	logger.SetPrefix("devtoken")
	sub := flag.String("sub", "", "user id (token subject), required")
	name := flag.String("name", "", "display name")
	email := flag.String("email", "", "email")
	image := flag.String("image", "", "avatar URL")
	ttl := flag.Duration("ttl", 0, "token lifetime (default DEV_TOKEN_TTL_HOURS)")
	flag.Parse()

	if *sub == "" {
		fmt.Fprintln(os.Stderr, "devtoken: -sub is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg := config.Load()
	lifetime := *ttl
	if lifetime <= 0 {
		lifetime = cfg.Auth.DevTokenTTL
	}
	if lifetime <= 0 {
		lifetime = 24 * time.Hour
	}

	v := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	tok, err := v.Issue(model.Principal{UserID: *sub, Name: *name, Email: *email, Image: *image}, lifetime)
	if err != nil {
		logger.Errorf("issue token: %v", err)
		logger.Flush(2 * time.Second)
		os.Exit(1)
	}
	fmt.Println(tok)
	logger.Flush(time.Second)
}
