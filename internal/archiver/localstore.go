package archiver

import (
	"context"
	"os"
	"path/filepath"

	"github.com/satori-nvr/satori/internal/errs"
	"github.com/satori-nvr/satori/internal/satoriconfig"
	"github.com/satori-nvr/satori/internal/storage"
)

// localStore is the filesystem-backed Store, rooted at a sandbox so a
// maliciously or accidentally crafted key can never write outside
// storage.base_dir.
type localStore struct {
	sandbox *storage.Sandbox
}

func newLocalStore(cfg satoriconfig.StorageConfig) (Store, error) {
	sandbox, err := storage.NewSandbox(cfg.BaseDir)
	if err != nil {
		return nil, errs.NewConfigError("creating local storage base directory", err)
	}
	return &localStore{sandbox: sandbox}, nil
}

func (s *localStore) Put(_ context.Context, key string, data []byte) error {
	if err := s.sandbox.AtomicWrite(key, data); err != nil {
		return errs.NewTransientIO("local store put "+key, err)
	}
	return nil
}

func (s *localStore) Get(_ context.Context, key string) ([]byte, error) {
	data, err := s.sandbox.ReadFile(key)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errs.NewNotFound(key)
		}
		return nil, errs.NewTransientIO("local store get "+key, err)
	}
	return data, nil
}

func (s *localStore) List(_ context.Context, prefix string) ([]string, error) {
	dir := filepath.Join(s.sandbox.BaseDir(), filepath.FromSlash(prefix))
	var keys []string
	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return filepath.SkipDir
			}
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, relErr := filepath.Rel(s.sandbox.BaseDir(), path)
		if relErr != nil {
			return relErr
		}
		keys = append(keys, filepath.ToSlash(rel))
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, errs.NewTransientIO("local store list "+prefix, err)
	}
	return keys, nil
}

func (s *localStore) Delete(_ context.Context, key string) error {
	path, err := s.sandbox.ResolvePath(key)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errs.NewTransientIO("local store delete "+key, err)
	}
	return nil
}
