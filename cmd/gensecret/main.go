package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/spf13/pflag"
)

const defaultSecretKeyBytesLen = 32

func main() {
	fs := pflag.NewFlagSet("gensecret", pflag.ExitOnError)
	size := fs.IntP("bytes", "n", defaultSecretKeyBytesLen, "Secret length in bytes")
	count := fs.IntP("count", "c", 1, "How many secrets to print")
	_ = fs.Parse(os.Args[1:])

	if *size < 16 {
		fmt.Fprintln(os.Stderr, "secret must be at least 16 bytes long")
		os.Exit(1)
	}

	for range *count {
		secret, err := generate(*size)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error while generating secret key: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(secret)
	}
}

// generate returns hex encoded random secret of n bytes
func generate(n int) (string, error) {
	b := make([]byte, n)

	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
