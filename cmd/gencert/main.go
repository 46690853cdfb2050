// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// SPDX-License-Identifier: MIT

// Command gencert generates self-signed TLS certificates for the WHIP/WHEP
// HTTPS endpoints a Strom server exposes.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/eyevinn-osaas/strom-go/internal/tls"
)

func main() {
	certPath := flag.String("cert", "certs/strom.crt", "Path to certificate file")
	keyPath := flag.String("key", "certs/strom.key", "Path to key file")
	years := flag.Int("years", 10, "Certificate validity in years")
	flag.Parse()

	if err := tls.GenerateSelfSigned(*certPath, *keyPath, *years); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Self-signed TLS certificate generated:\n")
	fmt.Printf("  certificate: %s\n", *certPath)
	fmt.Printf("  private key: %s\n", *keyPath)
	fmt.Printf("  valid for:   %d years\n", *years)
}
