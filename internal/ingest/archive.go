package ingest

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	lerrors "github.com/arkilian/vectorlayer/internal/errors"
)

// maxEntrySize caps a single extracted file.
const maxEntrySize = 4 << 30

// Extract unpacks a zip archive into dest. Entries resolving outside dest
// are rejected.
func Extract(archivePath, dest string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		if r != nil {
			r.Close()
		}
		return lerrors.Wrap(lerrors.ErrCategoryFormat, lerrors.CodeNotAnArchive,
			fmt.Sprintf("%s is not an archive", filepath.Base(archivePath)), err)
	}
	defer r.Close()

	root, err := filepath.Abs(dest)
	if err != nil {
		return lerrors.NewInternalError("resolve scratch directory", err)
	}

	for _, f := range r.File {
		target := filepath.Join(root, filepath.FromSlash(f.Name))
		if target != root && !strings.HasPrefix(target, root+string(filepath.Separator)) {
			return lerrors.NewFormatError(lerrors.CodeNotAnArchive,
				fmt.Sprintf("archive entry %q escapes the extraction directory", f.Name))
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return lerrors.NewInternalError("create directory", err)
			}
			continue
		}
		if !f.Mode().IsRegular() {
			continue
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return lerrors.NewInternalError("create directory", err)
	}

	rc, err := f.Open()
	if err != nil {
		return lerrors.Wrap(lerrors.ErrCategoryFormat, lerrors.CodeNotAnArchive,
			fmt.Sprintf("read archive entry %q", f.Name), err)
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return lerrors.NewInternalError("create "+f.Name, err)
	}
	n, err := io.Copy(out, io.LimitReader(rc, maxEntrySize+1))
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return lerrors.Wrap(lerrors.ErrCategoryFormat, lerrors.CodeNotAnArchive,
			fmt.Sprintf("extract archive entry %q", f.Name), err)
	}
	if n > maxEntrySize {
		return lerrors.NewFormatError(lerrors.CodeNotAnArchive,
			fmt.Sprintf("archive entry %q is too large", f.Name))
	}
	return nil
}
