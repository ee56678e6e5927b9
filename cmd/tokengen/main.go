// Package main provides a CLI tool for generating operator bearer tokens for
// the /ops endpoints. These tokens use the dev signing secret by default and
// will NOT work against a production deployment.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"gradegate/pkg/secrets"
)

// Dev secret for local environments; production sets OPS_JWT_SECRET.
const devOpsSecret = "dev-ops-secret-change-in-production"

type tokenOutput struct {
	Token     string            `json:"token"`
	Subject   string            `json:"subject"`
	ExpiresIn string            `json:"expires_in"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	subject := flag.String("subject", "", "Operator identity placed in the token subject (required)")
	secret := flag.String("secret", "", "Signing secret. Falls back to OPS_JWT_SECRET, then the dev secret.")
	ttl := flag.Duration("ttl", time.Hour, "Token time-to-live")
	asJSON := flag.Bool("json", false, "Output as JSON")
	newStatic := flag.Bool("new-static-token", false, "Generate a pre-shared operator token and its bcrypt hash, then exit")
	flag.Parse()

	if *newStatic {
		token, err := secrets.Generate()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: generate token: %v\n", err)
			os.Exit(1)
		}
		hash, err := secrets.Hash(token)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: hash token: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("token (give to the operator, shown once):\n  %s\n", token)
		fmt.Printf("hash (set as OPS_TOKEN_HASH on the server):\n  %s\n", hash)
		return
	}

	if *subject == "" {
		fmt.Fprintln(os.Stderr, "error: -subject is required (e.g. -subject ops@example.edu)")
		flag.Usage()
		os.Exit(1)
	}

	key := *secret
	if key == "" {
		key = os.Getenv("OPS_JWT_SECRET")
	}
	if key == "" {
		key = devOpsSecret
		fmt.Fprintln(os.Stderr, "warning: using dev secret; pass -secret or set OPS_JWT_SECRET")
	}

	now := time.Now()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": *subject,
		"iat": now.Unix(),
		"exp": now.Add(*ttl).Unix(),
	}).SignedString([]byte(key))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: sign token: %v\n", err)
		os.Exit(1)
	}

	if *asJSON {
		out := tokenOutput{
			Token:     token,
			Subject:   *subject,
			ExpiresIn: ttl.String(),
			Usage: map[string]string{
				"curl": fmt.Sprintf("curl -H 'Authorization: Bearer %s' http://localhost:8080/ops/failed-webhooks", token),
			},
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		return
	}

	fmt.Println(token)
}
