package pgledger_test

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"testing"

	envtesting "github.com/malbeclabs/envelope/utils/pkg/testing"
)

var testDB *envtesting.DB

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	var err error
	testDB, err = envtesting.NewDB(context.Background(), slog.Default(), nil)
	if err != nil {
		slog.Error("failed to start PostgreSQL container", "error", err)
		os.Exit(1)
	}

	code := m.Run()

	testDB.Close()
	os.Exit(code)
}
