package fshelper

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
)

// Extensions of photos that can carry EXIF
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".jpe":  true,
	".tif":  true,
	".tiff": true,
}

// NameFS is a filesystem that has a name
type NameFS interface {
	fs.FS
	Name() string
}

// DirFS represents a directory filesystem with a name. When only is set the
// source is that single file.
type DirFS struct {
	fs.FS
	name string
	only string
}

// Name returns the name of the filesystem
func (d *DirFS) Name() string {
	return d.name
}

// ZipFS represents a zip filesystem with a name
type ZipFS struct {
	*zip.Reader
	name string
	rc   io.Closer
}

// Name returns the name of the filesystem
func (z *ZipFS) Name() string {
	return z.name
}

// Close closes the zip file
func (z *ZipFS) Close() error {
	if z.rc != nil {
		return z.rc.Close()
	}
	return nil
}

// Photo is one image inside a source
type Photo struct {
	FS   fs.FS
	Path string
	Name string
}

// Open opens the photo for reading
func (p Photo) Open() (fs.File, error) {
	return p.FS.Open(p.Path)
}

// IsImageFile reports whether name looks like a photo that can carry EXIF
func IsImageFile(name string) bool {
	return imageExtensions[strings.ToLower(path.Ext(name))]
}

// ParsePath turns files, directories, zip archives and glob patterns into
// sources
func ParsePath(paths []string) ([]NameFS, error) {
	var fsyss []NameFS

	for _, p := range paths {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("invalid glob pattern %s: %w", p, err)
		}

		if len(matches) == 0 {
			// No matches, try as a direct path
			if _, err := os.Stat(p); err != nil {
				if os.IsNotExist(err) {
					return nil, fmt.Errorf("path does not exist: %s", p)
				}
				return nil, fmt.Errorf("error accessing path %s: %w", p, err)
			}
			matches = []string{p}
		}

		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				return nil, fmt.Errorf("error accessing path %s: %w", match, err)
			}

			switch {
			case info.IsDir():
				fsyss = append(fsyss, &DirFS{
					FS:   os.DirFS(match),
					name: filepath.Base(match),
				})
			case strings.HasSuffix(strings.ToLower(match), ".zip"):
				zipFS, err := OpenZip(match)
				if err != nil {
					CloseAll(fsyss)
					return nil, fmt.Errorf("error opening zip file %s: %w", match, err)
				}
				fsyss = append(fsyss, zipFS)
			case IsImageFile(match):
				fsyss = append(fsyss, &DirFS{
					FS:   os.DirFS(filepath.Dir(match)),
					name: filepath.Base(match),
					only: filepath.Base(match),
				})
			default:
				CloseAll(fsyss)
				return nil, fmt.Errorf("unsupported file type: %s", match)
			}
		}
	}

	return fsyss, nil
}

// OpenZip opens a zip file and returns a filesystem
func OpenZip(path string) (*ZipFS, error) {
	zipFile, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("error opening zip file: %w", err)
	}

	info, err := zipFile.Stat()
	if err != nil {
		zipFile.Close()
		return nil, fmt.Errorf("error getting zip file info: %w", err)
	}

	zipReader, err := zip.NewReader(zipFile, info.Size())
	if err != nil {
		zipFile.Close()
		return nil, fmt.Errorf("error creating zip reader: %w", err)
	}

	return &ZipFS{
		Reader: zipReader,
		name:   filepath.Base(path),
		rc:     zipFile,
	}, nil
}

// Photos lists the images of a source in lexical order
func Photos(fsys NameFS) ([]Photo, error) {
	if d, ok := fsys.(*DirFS); ok && d.only != "" {
		return []Photo{{FS: d.FS, Path: d.only, Name: d.only}}, nil
	}

	var photos []Photo
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsImageFile(p) {
			return nil
		}
		photos = append(photos, Photo{FS: fsys, Path: p, Name: fsys.Name() + "/" + p})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error walking %s: %w", fsys.Name(), err)
	}

	sort.Slice(photos, func(i, j int) bool { return photos[i].Path < photos[j].Path })
	return photos, nil
}

// CloseAll closes every source that holds an open file
func CloseAll(fsyss []NameFS) {
	for _, fsys := range fsyss {
		if c, ok := fsys.(io.Closer); ok {
			c.Close()
		}
	}
}
