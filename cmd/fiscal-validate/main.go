package main

import (
	"encoding/json"
	"os"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/fiscal-ingest/pkg/cli"
	"github.com/denysvitali/fiscal-ingest/pkg/models"
	"github.com/denysvitali/fiscal-ingest/pkg/parsers"
	"github.com/denysvitali/fiscal-ingest/pkg/validator"
)

var args struct {
	cli.LogArgs
	cli.EngineArgs

	Files []string `arg:"positional,required"`
}

var log = logrus.StandardLogger()

func main() {
	arg.MustParse(&args)
	args.LogArgs.Apply()

	acc, err := args.EngineArgs.Accel()
	if err != nil {
		log.Fatalf("accelerator: %v", err)
	}
	v := validator.New()
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	ok := true
	for _, f := range args.Files {
		b, err := os.ReadFile(f)
		if err != nil {
			log.Errorf("%s: %v", f, err)
			ok = false
			continue
		}
		xml, err := parsers.DecodePayload(b, acc)
		if err != nil {
			log.Errorf("%s: %v", f, err)
			ok = false
			continue
		}
		docType, found := parsers.DetectDocumentType([]byte(xml), acc)
		if !found {
			log.Errorf("%s: %v", f, models.ErrUnsupportedDocumentType)
			ok = false
			continue
		}
		result := v.Validate(xml, docType)
		if !result.IsValid {
			ok = false
		}
		if err := enc.Encode(result); err != nil {
			log.Fatalf("write output: %v", err)
		}
	}
	if !ok {
		os.Exit(1)
	}
}
