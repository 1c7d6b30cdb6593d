// Package collection discovers the units of work under an input root and
// loads their task descriptors. A collection is a directory holding an
// input.json descriptor and a PDFs/ folder; every collection is processed
// independently of the others.
package collection

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const (
	// DescriptorName is the task descriptor file inside a collection.
	DescriptorName = "input.json"

	// PDFDirName is the folder inside a collection holding the documents.
	PDFDirName = "PDFs"
)

// Collection is one input folder.
type Collection struct {
	// Name is the directory base name; it prefixes the output file.
	Name string

	// Dir is the collection directory.
	Dir string
}

// DescriptorPath returns the path of the collection's input.json.
func (c Collection) DescriptorPath() string {
	return filepath.Join(c.Dir, DescriptorName)
}

// PDFDir returns the directory holding the collection's documents.
func (c Collection) PDFDir() string {
	return filepath.Join(c.Dir, PDFDirName)
}

// DocumentPath returns the expected path of a document named in the
// descriptor.
func (c Collection) DocumentPath(filename string) string {
	return filepath.Join(c.PDFDir(), filename)
}

// OutputName returns the report file name for this collection.
func (c Collection) OutputName() string {
	return c.Name + "_output.json"
}

// Discover returns the immediate subdirectories of root as collections,
// sorted by name. Plain files and hidden directories are ignored. An empty
// root yields an empty slice and no error.
func Discover(root string) ([]Collection, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("collection: read input root %s: %w", root, err)
	}

	out := make([]Collection, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".") || !isDir(root, e) {
			continue
		}
		out = append(out, Collection{
			Name: e.Name(),
			Dir:  filepath.Join(root, e.Name()),
		})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// isDir reports whether e is a directory, following symlinks.
func isDir(root string, e fs.DirEntry) bool {
	if e.IsDir() {
		return true
	}
	if e.Type()&fs.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(filepath.Join(root, e.Name()))
	return err == nil && info.IsDir()
}
