// Package main implements keygen, a small utility that generates the shared
// key material both relay services must be configured with. The passphrase
// and salt have to be identical on the coordinator and the executor or
// neither side can read the other's ciphertext.
package main

import (
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"log"
)

func main() {
	keyBytes := flag.Int("key-bytes", 32, "random bytes in the generated passphrase")
	saltBytes := flag.Int("salt-bytes", 16, "random bytes in the generated salt")
	flag.Parse()

	key, err := randomToken(*keyBytes)
	if err != nil {
		log.Fatalf("Failed to generate key: %v", err)
	}

	salt, err := randomToken(*saltBytes)
	if err != nil {
		log.Fatalf("Failed to generate salt: %v", err)
	}

	fmt.Println("# Configure BOTH services with identical values:")
	fmt.Printf("export RELAY_CRYPTO_KEY=%s\n", key)
	fmt.Printf("export RELAY_CRYPTO_SALT=%s\n", salt)
}

// randomToken returns n bytes from crypto/rand as unpadded URL-safe base64.
func randomToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
