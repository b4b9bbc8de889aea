package service

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/asia-shop/identity/pkg/cryptox"
)

// Password hashing needs a pepper file before any user is registered.
func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "identity-service-test")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}
