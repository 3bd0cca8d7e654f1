// Package b2 archives raw payloads in a Backblaze B2 bucket.
package b2

import (
	"context"
	"fmt"

	rcloneb2 "github.com/rclone/rclone/backend/b2"
	"github.com/rclone/rclone/fs/config/configmap"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/fiscal-ingest/pkg/crypt"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/model"
	"github.com/denysvitali/fiscal-ingest/pkg/storage/rclone"
)

var log = logrus.StandardLogger().WithField("package", "storage/b2")

type B2 struct {
	*rclone.Archive
	bucketName string
}

var _ model.Archive = (*B2)(nil)

type Config struct {
	Account    string
	Key        string
	BucketName string

	// Encryption specific
	Passphrase string
}

func (c Config) validate() error {
	if c.Account == "" {
		return fmt.Errorf("account is required")
	}
	if c.Key == "" {
		return fmt.Errorf("key is required")
	}
	if c.BucketName == "" {
		return fmt.Errorf("bucket name is required")
	}
	return nil
}

func New(ctx context.Context, config Config) (*B2, error) {
	if err := config.validate(); err != nil {
		return nil, err
	}

	var opts []rclone.Option
	if len(config.Passphrase) == 0 {
		log.Warnf("no passphrase provided, encryption will be disabled")
	} else {
		c, err := crypt.New(config.Passphrase)
		if err != nil {
			return nil, err
		}
		opts = append(opts, rclone.WithCipher(c))
	}

	b2fs, err := rcloneb2.NewFs(ctx,
		"b2",
		config.BucketName+"/",
		configmap.Simple{
			"account":    config.Account,
			"key":        config.Key,
			"chunk_size": "5M",
		},
	)
	if err != nil {
		return nil, err
	}

	return &B2{
		Archive:    rclone.New(b2fs, opts...),
		bucketName: config.BucketName,
	}, nil
}

func (b *B2) BucketName() string {
	return b.bucketName
}
