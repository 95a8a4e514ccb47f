// generate-secret prints a random signing secret for IDS_AUTH_JWT_SECRET.
// Rotating the secret invalidates every token issued with the previous one.
//
//	go run scripts/generate-secret.go
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
)

func main() {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		log.Fatal(err)
	}
	secret := hex.EncodeToString(b)

	fmt.Println("==========================================================")
	fmt.Println("JWT Signing Secret Generated")
	fmt.Println("==========================================================")
	fmt.Printf("\nexport IDS_AUTH_JWT_SECRET=%s\n\n", secret)
	fmt.Println("==========================================================")
}
