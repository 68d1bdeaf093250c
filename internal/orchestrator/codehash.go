package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

var hashSkipDirs = map[string]bool{
	".git":         true,
	"__pycache__":  true,
	"node_modules": true,
	".rev":         true,
	".venv":        true,
}

// hashFileCap skips pathological blobs; code files are far smaller.
const hashFileCap = 1 << 20

// codeHash fingerprints the workspace's file contents. Equal hashes mean no
// code changed, which gates the test anti-thrash rules.
func (o *Orchestrator) codeHash() string {
	if o.resolver == nil {
		return ""
	}
	root := o.resolver.Primary()

	h := sha256.New()
	// WalkDir visits lexically, so the digest is deterministic.
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if hashSkipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		info, infoErr := d.Info()
		if infoErr != nil || !info.Mode().IsRegular() || info.Size() > hashFileCap {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		f, openErr := os.Open(path)
		if openErr != nil {
			return nil
		}
		h.Write([]byte(filepath.ToSlash(rel)))
		h.Write([]byte{0})
		_, _ = io.Copy(h, f)
		f.Close()
		return nil
	})
	if walkErr != nil {
		return ""
	}
	return hex.EncodeToString(h.Sum(nil))
}
