package diva

import (
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/gabriel-vasile/mimetype"
)

var (
	textTypes  = []string{"application/xml", "text/xml", "text/plain", "text/csv"}
	imageTypes = []string{"image/png", "image/jpeg"}
)

// BuildCollection reads every regular file in dir into a collection named
// name. Files are ordered by name so the request body is deterministic.
func BuildCollection(name, dir string) (Collection, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return Collection{}, fmt.Errorf("read data dir %s: %w", dir, err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	collection := Collection{Name: name, Files: make([]FileEntry, 0, len(entries))}
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		file, err := ReadFileEntry(filepath.Join(dir, entry.Name()))
		if err != nil {
			return Collection{}, err
		}
		collection.Files = append(collection.Files, file)
	}
	return collection, nil
}

// ReadFileEntry sniffs the content type of path and encodes it as a text or
// image entry.
func ReadFileEntry(path string) (FileEntry, error) {
	const op = "read file entry"

	mtype, err := mimetype.DetectFile(path)
	if err != nil {
		return FileEntry{}, fmt.Errorf("detect type of %s: %w", path, err)
	}
	fileType, ok := classify(mtype, path)
	if !ok {
		return FileEntry{}, newError(KindUnsupportedFileType, op, nil, "%s has unsupported content type %s", path, mtype.String())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return FileEntry{}, fmt.Errorf("read %s: %w", path, err)
	}

	base, ext := splitName(filepath.Base(path))
	entry := FileEntry{Type: fileType, Name: base, Extension: ext}
	switch fileType {
	case FileTypeText:
		if !utf8.Valid(data) {
			return FileEntry{}, newError(KindUnsupportedFileType, op, nil, "%s is not valid UTF-8 text", path)
		}
		entry.Value = string(data)
	case FileTypeImage:
		entry.Value = base64.StdEncoding.EncodeToString(data)
	}
	return entry, nil
}

// EncodeFile wraps an arbitrary binary file, such as a trained model, as an
// image-typed entry named entryName. The service stores binary payloads this way.
func EncodeFile(path, entryName string) (FileEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return FileEntry{}, fmt.Errorf("read %s: %w", path, err)
	}
	_, ext := splitName(filepath.Base(path))
	if entryName == "" {
		entryName, _ = splitName(filepath.Base(path))
	}
	return FileEntry{
		Type:      FileTypeImage,
		Value:     base64.StdEncoding.EncodeToString(data),
		Name:      entryName,
		Extension: ext,
	}, nil
}

// Decode returns the raw bytes of the entry's value.
func (f FileEntry) Decode() ([]byte, error) {
	if f.Type == FileTypeImage {
		return base64.StdEncoding.DecodeString(f.Value)
	}
	return []byte(f.Value), nil
}

func classify(mtype *mimetype.MIME, path string) (FileType, bool) {
	for _, t := range imageTypes {
		if mtype.Is(t) {
			return FileTypeImage, true
		}
	}
	for _, t := range textTypes {
		if mtype.Is(t) {
			return FileTypeText, true
		}
	}
	// XML dialects such as RSS or KML are still XML.
	if descendsFrom(mtype, "text/xml") {
		return FileTypeText, true
	}
	// A transcription containing markup sniffs as HTML; the extension decides.
	if descendsFrom(mtype, "text/plain") && hasTextExtension(path) {
		return FileTypeText, true
	}
	return "", false
}

func descendsFrom(mtype *mimetype.MIME, ancestor string) bool {
	for m := mtype.Parent(); m != nil; m = m.Parent() {
		if m.Is(ancestor) {
			return true
		}
	}
	return false
}

func hasTextExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return false
	}
	for _, t := range textTypes {
		if m := mimetype.Lookup(t); m != nil && m.Extension() == ext {
			return true
		}
	}
	return false
}

// splitName splits "line.gt.txt" into "line.gt" and "txt".
func splitName(name string) (string, string) {
	ext := filepath.Ext(name)
	if ext == "" || ext == name {
		return name, ""
	}
	return strings.TrimSuffix(name, ext), strings.TrimPrefix(ext, ".")
}
