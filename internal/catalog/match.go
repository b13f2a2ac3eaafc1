package catalog

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/agnivade/levenshtein"
)

var ErrNotDirectory = errors.New("not a directory")

// DefaultInstruments are the classes the classifier is trained on.
var DefaultInstruments = []string{
	"Clarinet",
	"Sax Alto",
	"Flute",
	"Violin",
	"Trumpet",
	"Cello",
	"Sax Tenor",
	"Piccolo",
	"Sax Soprano",
	"Sax Baritone",
	"Oboe",
	"Double Bass",
}

// FindMatchingStrings returns, lowercased and in list order, every entry of
// list that occurs in target (case-insensitively).
func FindMatchingStrings(list []string, target string) []string {
	t := strings.ToLower(target)
	var out []string
	for _, s := range list {
		l := strings.ToLower(s)
		if strings.Contains(t, l) {
			out = append(out, l)
		}
	}
	return out
}

// fuzzyTagMatch compares normalised tags against instrument names, also trying
// adjacent tag pairs ("sax", "alto") so multi-word instruments can match.
// It returns the instrument only when exactly one is within edit distance 1.
func fuzzyTagMatch(instruments, tags []string) string {
	var candidates []string
	for i, tag := range tags {
		candidates = append(candidates, normaliseTag(tag))
		if i+1 < len(tags) {
			candidates = append(candidates, normaliseTag(tag)+" "+normaliseTag(tags[i+1]))
		}
	}

	found := map[string]bool{}
	for _, inst := range instruments {
		l := strings.ToLower(inst)
		for _, c := range candidates {
			if c != "" && levenshtein.ComputeDistance(c, l) <= 1 {
				found[l] = true
				break
			}
		}
	}
	if len(found) != 1 {
		return ""
	}
	for l := range found {
		return l
	}
	return ""
}

func normaliseTag(tag string) string {
	r := strings.NewReplacer("-", " ", "_", " ")
	return strings.TrimSpace(r.Replace(strings.ToLower(tag)))
}

func isWav(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".wav")
}

// wavFiles lists every .wav below dir, sorted.
func wavFiles(dir string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && isWav(d.Name()) {
			out = append(out, path)
		}
		return nil
	})
	sort.Strings(out)
	return out, err
}

// HasWavFiles reports whether dir or any of its subdirectories holds a .wav file.
func HasWavFiles(dir string) (bool, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return false, fmt.Errorf("%s: %w", dir, ErrNotDirectory)
	}
	files, err := wavFiles(dir)
	if err != nil {
		return false, err
	}
	return len(files) > 0, nil
}

// SingleWavFile returns the only .wav file below dir, or "" when there are
// none or more than one.
func SingleWavFile(dir string) (string, error) {
	files, err := wavFiles(dir)
	if err != nil {
		return "", err
	}
	if len(files) != 1 {
		return "", nil
	}
	return files[0], nil
}

// HasMetadata reports whether the metadata file at path exists. The parent
// directory must exist.
func HasMetadata(path string) (bool, error) {
	info, err := os.Stat(filepath.Dir(path))
	if err != nil || !info.IsDir() {
		return false, fmt.Errorf("%s: %w", filepath.Dir(path), ErrNotDirectory)
	}
	st, err := os.Stat(path)
	return err == nil && st.Mode().IsRegular(), nil
}
