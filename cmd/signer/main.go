// Package main provides a CLI tool for signing webhook payloads during
// development and operator testing. It computes the same HMAC the grading
// service would attach, so a delivery can be replayed with curl.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"

	"gradegate/internal/signature"
	"gradegate/internal/webhook"
)

// Dev secret - matches config.go when WEBHOOK_SECRET is not set
const devWebhookSecret = "dev-webhook-secret-change-in-production"

type signerOutput struct {
	Signature string            `json:"signature"`
	Header    string            `json:"header"`
	Usage     map[string]string `json:"usage"`
}

func main() {
	file := flag.String("file", "", "Payload file to sign. Reads stdin when empty or \"-\".")
	secret := flag.String("secret", "", "Webhook secret. Falls back to WEBHOOK_SECRET, then the dev secret.")
	asJSON := flag.Bool("json", false, "Output as JSON")
	check := flag.String("check", "", "Verify this signature against the payload instead of signing")
	flag.Parse()

	body, err := readPayload(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	key := *secret
	if key == "" {
		key = os.Getenv("WEBHOOK_SECRET")
	}
	if key == "" {
		key = devWebhookSecret
		fmt.Fprintln(os.Stderr, "warning: using dev secret; pass -secret or set WEBHOOK_SECRET")
	}

	if *check != "" {
		if err := signature.Verify(body, *check, key); err != nil {
			fmt.Fprintf(os.Stderr, "signature INVALID: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("signature valid")
		return
	}

	sig := signature.Compute(body, key)

	if *asJSON {
		out := signerOutput{
			Signature: sig,
			Header:    webhook.SignatureHeader,
			Usage: map[string]string{
				"curl": fmt.Sprintf("curl -X POST -H '%s: %s' -d @payload.json http://localhost:8080/webhooks/grading",
					webhook.SignatureHeader, sig),
			},
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
		return
	}

	fmt.Printf("%s: %s\n", webhook.SignatureHeader, sig)
}

func readPayload(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
