// Command genkey mints a secp256k1 operator key pair. The public key goes
// into the service whitelist (seed configuration or /keys/register); the
// private key stays with the operator and signs requests.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"licensor/internal/auth"
)

func main() {
	out := flag.String("out", "", "write the key pair as JSON to this file instead of stdout")
	flag.Parse()

	pair, err := auth.GenerateKeyPair()
	if err != nil {
		fmt.Fprintf(os.Stderr, "genkey: %v\n", err)
		os.Exit(1)
	}

	if *out != "" {
		data, err := json.MarshalIndent(pair, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "genkey: encode: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*out, append(data, '\n'), 0o600); err != nil {
			fmt.Fprintf(os.Stderr, "genkey: write %s: %v\n", *out, err)
			os.Exit(1)
		}
		fmt.Printf("key pair written to %s\n", *out)
		fmt.Printf("public key: %s\n", pair.PublicKey)
		return
	}

	fmt.Printf("private key: %s\n", pair.PrivateKey)
	fmt.Printf("public key:  %s\n", pair.PublicKey)
}
