package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/pointsledger/pointsledger/internal/auth"
)

type output struct {
	Secret      string `json:"secret"`
	Hash        string `json:"api_key_hash"`
	Fingerprint string `json:"fingerprint"`
}

func main() {
	var (
		env    = flag.String("env", auth.EnvLive, "Secret environment tag: live or test")
		format = flag.String("format", "plain", "Output format: plain, env or json")
	)
	flag.Parse()

	if *env != auth.EnvLive && *env != auth.EnvTest {
		fmt.Fprintln(os.Stderr, "invalid env; use live or test")
		os.Exit(1)
	}

	generated, err := auth.GenerateSecret(*env, auth.DefaultHashParams)
	if err != nil {
		fmt.Fprintln(os.Stderr, "generate secret:", err)
		os.Exit(1)
	}

	out := output{
		Secret:      generated.Plaintext,
		Hash:        generated.Hash,
		Fingerprint: generated.Fingerprint,
	}

	switch strings.ToLower(*format) {
	case "plain":
		fmt.Println(out.Secret)
		fmt.Fprintln(os.Stderr, "API_KEY_HASH="+out.Hash)
	case "env":
		// single quotes keep the $ separators of the PHC string intact
		fmt.Printf("API_KEY_HASH='%s'\n", out.Hash)
		fmt.Fprintln(os.Stderr, "secret (hand to clients, shown once):", out.Secret)
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(out)
	default:
		fmt.Fprintln(os.Stderr, "invalid format; use plain, env or json")
		os.Exit(1)
	}
}
