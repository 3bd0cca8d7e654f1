package cli

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var log = logrus.StandardLogger().WithField("package", "cli")

// LoadEnv reads .env.<FISCAL_ENV> and then .env from dir. Variables already
// set are never overridden, so the environment-specific file wins.
func LoadEnv(dir string) {
	var files []string
	if env := os.Getenv("FISCAL_ENV"); env != "" {
		files = append(files, filepath.Join(dir, ".env."+env))
	}
	files = append(files, filepath.Join(dir, ".env"))
	for _, f := range files {
		err := godotenv.Load(f)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			log.Warnf("unable to load %s: %v", f, err)
			continue
		}
		log.Debugf("loaded %s", f)
	}
}
