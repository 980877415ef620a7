package plugin

import (
	"archive/zip"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
)

// maxArchiveFile caps a single file read out of an archive.
const maxArchiveFile = 4 << 20

var manifestFiles = []string{"plugin.json", "plugin.yaml", "plugin.yml"}

// archive is the in-memory view of one module archive.
type archive struct {
	path     string
	name     string
	manifest *Manifest
	sources  map[string]string // .lua files keyed by archive path
}

// openArchive reads the manifest and Lua sources out of a zip file.
// The file is opened read-only and closed before returning.
func openArchive(file string) (*archive, Stage, error) {
	zr, err := zip.OpenReader(file)
	if err != nil {
		return nil, StageOpen, err
	}
	defer zr.Close()

	a := &archive{
		path:    file,
		name:    filepath.Base(file),
		sources: make(map[string]string),
	}

	var manifestName string
	var manifestData []byte
	for _, f := range zr.File {
		if f.FileInfo().IsDir() {
			continue
		}
		name := path.Clean(strings.TrimPrefix(f.Name, "/"))

		switch {
		case isManifestFile(name) && manifestData == nil:
			data, err := readZipFile(f)
			if err != nil {
				return nil, StageOpen, err
			}
			manifestName, manifestData = name, data
		case path.Ext(name) == ".lua":
			data, err := readZipFile(f)
			if err != nil {
				return nil, StageOpen, err
			}
			a.sources[name] = string(data)
		}
	}

	switch {
	case manifestData != nil:
		m, err := ParseManifest(manifestName, manifestData)
		if err != nil {
			return nil, StageManifest, err
		}
		a.manifest = m
	case a.sources["init.lua"] != "":
		a.manifest = NewManifestMinimal(nameFromFile(a.name))
	default:
		return nil, StageManifest, ErrNoManifest
	}

	return a, "", nil
}

func isManifestFile(name string) bool {
	for _, m := range manifestFiles {
		if name == m {
			return true
		}
	}
	return false
}

func readZipFile(f *zip.File) ([]byte, error) {
	if f.UncompressedSize64 > maxArchiveFile {
		return nil, fmt.Errorf("%s: file too large (%d bytes)", f.Name, f.UncompressedSize64)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxArchiveFile+1))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Name, err)
	}
	if len(data) > maxArchiveFile {
		return nil, fmt.Errorf("%s: file too large", f.Name)
	}
	return data, nil
}

// modules maps require names to sources: "lib/util.lua" becomes "lib.util".
func (a *archive) modules() map[string]string {
	mods := make(map[string]string, len(a.sources))
	for file, src := range a.sources {
		name := strings.TrimSuffix(file, ".lua")
		mods[strings.ReplaceAll(name, "/", ".")] = src
	}
	return mods
}

// nameFromFile derives a valid plugin name from an archive file name.
func nameFromFile(file string) string {
	base := strings.ToLower(strings.TrimSuffix(file, filepath.Ext(file)))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('-')
		}
	}
	name := strings.Trim(b.String(), "-")
	for strings.Contains(name, "--") {
		name = strings.ReplaceAll(name, "--", "-")
	}
	if name == "" || !namePattern.MatchString(name) {
		return "plugin"
	}
	return name
}
