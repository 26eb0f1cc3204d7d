package main

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
)

// Prints a random secret suitable for ACCESS_TOKEN_SECRET.
func main() {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Println(base64.StdEncoding.EncodeToString(buf))
}
