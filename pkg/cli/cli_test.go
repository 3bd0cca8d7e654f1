package cli_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/fiscal-ingest/pkg/accel"
	"github.com/denysvitali/fiscal-ingest/pkg/cli"
	"github.com/denysvitali/fiscal-ingest/pkg/storage"
)

type testArgs struct {
	cli.StorageArgs
	cli.ArchiveArgs
	Name  string
	Count int
}

func TestFillValues(t *testing.T) {
	args := testArgs{Name: "keychain:name", Count: 3}
	args.OpenSearchPassword = "keychain:opensearch"
	args.ArchivePassphrase = "plain"

	var asked []string
	err := cli.FillValues(&args, func(element string) (string, error) {
		asked = append(asked, element)
		return "secret-" + element, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "secret-opensearch", args.OpenSearchPassword)
	assert.Equal(t, "secret-name", args.Name)
	assert.Equal(t, "plain", args.ArchivePassphrase)
	assert.ElementsMatch(t, []string{"opensearch", "name"}, asked)
}

func TestFillValues_LookupError(t *testing.T) {
	args := testArgs{Name: "keychain:missing"}
	err := cli.FillValues(&args, func(string) (string, error) {
		return "", errors.New("not found")
	})
	assert.Error(t, err)
	assert.Equal(t, "keychain:missing", args.Name)
}

func TestFillKeychainValues_NothingToResolve(t *testing.T) {
	args := testArgs{Name: "plain"}
	assert.NoError(t, cli.FillKeychainValues(&args))
}

func TestRepositoryConfig(t *testing.T) {
	a := cli.StorageArgs{Storage: storage.DriverSQLite, SQLitePath: "x.db", DatabaseURL: "postgres://db"}
	assert.Equal(t, "x.db", a.RepositoryConfig().DSN)

	a.Storage = storage.DriverPostgres
	assert.Equal(t, "postgres://db", a.RepositoryConfig().DSN)

	a.Storage = storage.DriverOpenSearch
	a.OpenSearchAddr = "https://search:9200"
	c := a.RepositoryConfig()
	assert.Empty(t, c.DSN)
	assert.Equal(t, "https://search:9200", c.OpenSearch.Addr)
}

func TestArchiveConfig(t *testing.T) {
	a := cli.ArchiveArgs{Archive: storage.ArchiveB2, ArchivePassphrase: "p", B2Account: "acc", B2Key: "key", B2BucketName: "bucket"}
	c := a.ArchiveConfig()
	assert.Equal(t, storage.ArchiveB2, c.Kind)
	assert.Equal(t, "p", c.Passphrase)
	assert.Equal(t, "bucket", c.B2.BucketName)
}

func TestLoadEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("FISCAL_TEST_A=base\nFISCAL_TEST_B=base\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env.staging"), []byte("FISCAL_TEST_B=staging\n"), 0o600))
	t.Setenv("FISCAL_ENV", "staging")
	t.Cleanup(func() {
		os.Unsetenv("FISCAL_TEST_A")
		os.Unsetenv("FISCAL_TEST_B")
	})

	cli.LoadEnv(dir)
	assert.Equal(t, "base", os.Getenv("FISCAL_TEST_A"))
	assert.Equal(t, "staging", os.Getenv("FISCAL_TEST_B"))
}

func TestLoadEnv_MissingFiles(t *testing.T) {
	t.Setenv("FISCAL_ENV", "nowhere")
	cli.LoadEnv(t.TempDir())
}

func TestEngineArgs(t *testing.T) {
	a, err := cli.EngineArgs{}.Accel()
	require.NoError(t, err)
	assert.NotNil(t, a)

	a, err = cli.EngineArgs{Accelerator: "portable"}.Accel()
	require.NoError(t, err)
	assert.Equal(t, accel.Portable{}, a)

	_, err = cli.EngineArgs{Accelerator: "gpu"}.Accel()
	assert.Error(t, err)
}
