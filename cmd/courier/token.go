// ABOUTME: The token subcommand: mints a sender bearer token from auth.secret
// ABOUTME: The printed token goes into a sender's client.token setting

package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/2389/courier/internal/auth"
)

func runToken(args []string) error {
	fs := flag.NewFlagSet("token", flag.ContinueOnError)
	sender := fs.String("sender", "", "sender name carried in the token subject")
	ttl := fs.Duration("ttl", 30*24*time.Hour, "token lifetime (0 = never expires)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *sender == "" {
		return fmt.Errorf("-sender is required")
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is not configured")
	}

	v, err := auth.NewVerifier([]byte(cfg.Auth.Secret))
	if err != nil {
		return err
	}
	token, err := v.Generate(*sender, *ttl)
	if err != nil {
		return err
	}
	fmt.Println(token)
	return nil
}
