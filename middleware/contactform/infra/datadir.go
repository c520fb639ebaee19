package infra

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

const htaccessGuard = "Deny from all\n"

// EnsureDataDir cria o diretório de estado (0750) e, se faltar, um .htaccess
// negando acesso, para o caso de o diretório acabar sob a raiz de um servidor web.
func EnsureDataDir(dir string) error {
	if dir == "" {
		return errors.New("data dir is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	guard := filepath.Join(dir, ".htaccess")
	if _, err := os.Stat(guard); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", guard, err)
	}
	if err := os.WriteFile(guard, []byte(htaccessGuard), 0o640); err != nil {
		return fmt.Errorf("write %s: %w", guard, err)
	}
	return nil
}
