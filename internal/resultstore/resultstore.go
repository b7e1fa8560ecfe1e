// Package resultstore implements the on-disk result directory contract:
// one file per commit, filename the commit id, contents the textual
// test result blob exactly as produced. The dispatcher is the only
// writer; the reporter and tests are readers.
package resultstore

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"

	"github.com/codepr/narwhal-ci/internal/commit"
)

// Store is a directory-backed result repository.
type Store struct {
	dir string
}

// Open ensures dir exists (creating it if necessary) and returns a Store
// rooted there.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	return &Store{dir: dir}, nil
}

// Put writes payload to the file named commitID, overwriting any
// existing contents. Concurrent writes to the same commit id are
// last-writer-wins, which is acceptable since results for the same
// commit are expected to be equivalent.
func (s *Store) Put(commitID string, payload []byte) error {
	if err := commit.Valid(commitID); err != nil {
		return err
	}
	if err := guardFilename(commitID); err != nil {
		return err
	}
	return ioutil.WriteFile(s.path(commitID), payload, 0644)
}

// Get reads back the stored payload for commitID.
func (s *Store) Get(commitID string) ([]byte, error) {
	if err := commit.Valid(commitID); err != nil {
		return nil, err
	}
	if err := guardFilename(commitID); err != nil {
		return nil, err
	}
	return ioutil.ReadFile(s.path(commitID))
}

// List returns every commit id currently holding a result file, in the
// order returned by the underlying directory listing.
func (s *Store) List() ([]string, error) {
	entries, err := ioutil.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ids = append(ids, e.Name())
	}
	return ids, nil
}

func (s *Store) path(commitID string) string {
	return filepath.Join(s.dir, commitID)
}

// guardFilename rejects a commit id that would escape the store
// directory when joined into a path.
func guardFilename(commitID string) error {
	if strings.ContainsAny(commitID, "/\\") || commitID == ".." || commitID == "." {
		return fmt.Errorf("commit id is not a valid filename: %s", commitID)
	}
	return nil
}
