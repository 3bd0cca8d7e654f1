package main

// Decrypts a payload kept by an encrypted archive (fs with passphrase or b2):
//   fiscal-decrypt < NFe/3524...7890.xml > nfe.xml

import (
	"io"
	"os"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/fiscal-ingest/pkg/cli"
	fiscalcrypt "github.com/denysvitali/fiscal-ingest/pkg/crypt"
)

var args struct {
	Passphrase string `arg:"env:FISCAL_ARCHIVE_PASSPHRASE"`
}

var log = logrus.StandardLogger()

func main() {
	cli.LoadEnv(".")
	arg.MustParse(&args)
	if err := cli.FillKeychainValues(&args); err != nil {
		log.Fatalf("fill keychain values: %v", err)
	}

	if args.Passphrase == "" {
		log.Fatalf("passphrase cannot be empty")
	}

	c, err := fiscalcrypt.New(args.Passphrase)
	if err != nil {
		log.Fatalf("unable to create crypt: %v", err)
	}

	reader, err := c.Decrypt(os.Stdin)
	if err != nil {
		log.Fatalf("unable to decrypt: %v", err)
	}

	_, err = io.Copy(os.Stdout, reader)
	if err != nil {
		log.Fatalf("unable to copy: %v", err)
	}
}
