// Package seed enumerates the template files a repository is bootstrapped with.
package seed

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"strings"
)

//go:embed templates
var packaged embed.FS

// packagedRoot is the directory inside packaged holding the seed tree
const packagedRoot = "templates"

// TemplateFile is one seed file, addressed relative to the tree root
type TemplateFile struct {
	RelativePath string
	Content      []byte
}

// Tree is a directory of seed files
type Tree struct {
	fsys fs.FS
	root string
}

// Default returns the tree compiled into the binary
func Default() *Tree {
	return &Tree{fsys: packaged, root: packagedRoot}
}

// FromDir returns a tree read from a directory on disk
func FromDir(dir string) *Tree {
	return &Tree{fsys: os.DirFS(dir), root: "."}
}

// New returns a tree rooted at root inside fsys
func New(fsys fs.FS, root string) *Tree {
	return &Tree{fsys: fsys, root: root}
}

// Files walks the tree and returns every regular file at any depth.
// Directories are traversed but not returned. The tree is re-read on every
// call; order follows the directory listing.
func (t *Tree) Files() ([]TemplateFile, error) {
	var files []TemplateFile

	err := fs.WalkDir(t.fsys, t.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}

		content, err := fs.ReadFile(t.fsys, path)
		if err != nil {
			return fmt.Errorf("reading seed file %s: %w", path, err)
		}

		files = append(files, TemplateFile{
			RelativePath: t.relative(path),
			Content:      content,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking seed tree %s: %w", t.root, err)
	}

	return files, nil
}

func (t *Tree) relative(path string) string {
	if t.root == "." {
		return path
	}
	return strings.TrimPrefix(path, t.root+"/")
}
