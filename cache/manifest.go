package cache

import (
	"bufio"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
)

// ManifestFileName is the on-disk file name for a Manifest, per §6.
const ManifestFileName = "conanmanifest.txt"

// Manifest is the recursive mapping from relative path to content hash plus
// a combined top-level hash, used to detect remote drift from the local
// cache (§3 "Manifest").
type Manifest struct {
	FileMD5 map[string]string // relative path -> md5 hex
	Time    int64             // combined timestamp, first line of the file
}

// Equal reports whether two manifests compare equal: both the combined hash
// and the per-file entries must match.
func (m *Manifest) Equal(o *Manifest) bool {
	if m == nil || o == nil {
		return m == o
	}
	return m.CombinedHash() == o.CombinedHash()
}

// CombinedHash is md5(sorted-lines-joined), matching the on-disk format's
// top hash (§6).
func (m *Manifest) CombinedHash() string {
	lines := m.sortedLines()
	h := md5.Sum([]byte(strings.Join(lines, "\n")))
	return hex.EncodeToString(h[:])
}

func (m *Manifest) sortedLines() []string {
	lines := make([]string, 0, len(m.FileMD5))
	for path, sum := range m.FileMD5 {
		lines = append(lines, fmt.Sprintf("%s: %s", path, sum))
	}
	sort.Strings(lines)
	return lines
}

// WriteTo renders the manifest in the conanmanifest.txt line format: first
// line is the combined timestamp, subsequent lines are "relative/path:
// md5hex" sorted by path.
func (m *Manifest) WriteTo(w io.Writer) (int64, error) {
	bw := bufio.NewWriter(w)
	n, err := fmt.Fprintf(bw, "%d\n", m.Time)
	if err != nil {
		return int64(n), err
	}
	total := int64(n)
	for _, line := range m.sortedLines() {
		k, err := fmt.Fprintf(bw, "%s\n", line)
		total += int64(k)
		if err != nil {
			return total, err
		}
	}
	return total, bw.Flush()
}

// ReadManifest parses the conanmanifest.txt line format.
func ReadManifest(r io.Reader) (*Manifest, error) {
	sc := bufio.NewScanner(r)
	m := &Manifest{FileMD5: make(map[string]string)}
	if !sc.Scan() {
		return nil, errors.New("empty manifest")
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(sc.Text()), 10, 64)
	if err != nil {
		return nil, errors.Wrap(err, "parsing manifest timestamp")
	}
	m.Time = ts
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		idx := strings.LastIndex(line, ": ")
		if idx < 0 {
			return nil, errors.Errorf("malformed manifest line %q", line)
		}
		m.FileMD5[line[:idx]] = line[idx+2:]
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return m, nil
}

// WalkManifest computes a Manifest for every regular file under root, using
// godirwalk for the recursive walk (vendored by the teacher; adopted here
// because computing a manifest means hashing a whole content-addressed
// export/package tree on every cache read that needs drift detection, and
// godirwalk avoids the extra per-entry os.Lstat syscall path/filepath's
// filepath.Walk performs).
func WalkManifest(root string, now int64) (*Manifest, error) {
	m := &Manifest{FileMD5: make(map[string]string), Time: now}

	err := godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(path string, de *godirwalk.Dirent) error {
			if de.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			sum, err := md5File(path)
			if err != nil {
				return err
			}
			m.FileMD5[filepath.ToSlash(rel)] = sum
			return nil
		},
	})
	if err != nil {
		return nil, errors.Wrapf(err, "walking %s for manifest", root)
	}
	return m, nil
}

func md5File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
