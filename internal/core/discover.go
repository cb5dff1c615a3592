package core

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

var ErrDiscovery = errors.New("discovery failed")

var walkDir = filepath.WalkDir

type FileIterator func(yield func(path string, err error) bool)

// Used when the platform mime table does not know an extension.
var audioExtensions = map[string]string{
	".wav":  "audio/x-wav",
	".mp3":  "audio/mpeg",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".oga":  "audio/ogg",
	".opus": "audio/ogg",
	".m4a":  "audio/mp4",
	".aac":  "audio/aac",
	".aif":  "audio/x-aiff",
	".aiff": "audio/x-aiff",
	".au":   "audio/basic",
	".snd":  "audio/basic",
	".mid":  "audio/midi",
	".midi": "audio/midi",
	".wma":  "audio/x-ms-wma",
	".amr":  "audio/amr",
}

// MimeType guesses the mime type of path from its extension.
func MimeType(path string) string {
	ext := strings.ToLower(filepath.Ext(path))
	if ext == "" {
		return ""
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return audioExtensions[ext]
}

// IsAudioFile reports whether path has an audio mime type. Platform tables
// disagree on some containers (.ogg is application/ogg on some systems), so
// the built-in table also counts.
func IsAudioFile(path string) bool {
	if _, ok := audioExtensions[strings.ToLower(filepath.Ext(path))]; ok {
		return true
	}
	return strings.HasPrefix(MimeType(path), "audio/")
}

// Discover validates root and returns a lazy iterator over the audio files
// beneath it. The iterator walks the tree once per call.
func Discover(root string) (FileIterator, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("%w: cannot access root %s: %w", ErrDiscovery, root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: root %s is not a directory", ErrDiscovery, root)
	}

	return func(yield func(path string, err error) bool) {
		err := walkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return skipUnreadable(root, path, d, err)
			}
			if d.IsDir() || !IsAudioFile(path) {
				return nil
			}
			if !yield(path, nil) {
				return io.EOF
			}
			return nil
		})

		if err != nil && !errors.Is(err, io.EOF) {
			yield("", fmt.Errorf("%w: error walking %s: %w", ErrDiscovery, root, err))
		}
	}, nil
}

// Only the root itself is required to be readable. Subtrees that cannot be
// read, or vanish during the walk, are left out of the batch.
func skipUnreadable(root, path string, d fs.DirEntry, err error) error {
	if path == root {
		return err
	}
	slog.Warn("skipping unreadable path", "path", path, "error", err)
	if d != nil && d.IsDir() {
		return fs.SkipDir
	}
	return nil
}

func CollectFiles(iter FileIterator) ([]string, error) {
	var files []string
	for path, err := range iter {
		if err != nil {
			return nil, err
		}
		files = append(files, path)
	}
	return files, nil
}
