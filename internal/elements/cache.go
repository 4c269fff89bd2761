package elements

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"
)

// Cache manages raw body-data chunks on disk. Each fetch is stored as one or
// more timestamped JSON chunk files (bodies_<unix>_<chunk>.json) so a restart
// can serve the last known dataset without hitting the network.
type Cache struct {
	dir     string
	maxSets int
}

// NewCache creates a Cache that stores chunk files in dir and keeps at most
// maxSets fetch generations.
func NewCache(dir string, maxSets int) *Cache {
	if maxSets <= 0 {
		maxSets = 5
	}
	return &Cache{
		dir:     dir,
		maxSets: maxSets,
	}
}

// Write saves the chunks of one fetch under a shared timestamp and prunes
// old generations beyond maxSets.
func (c *Cache) Write(chunks [][]byte, ts time.Time) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	for i, chunk := range chunks {
		filename := fmt.Sprintf("bodies_%d_%d.json", ts.Unix(), i)
		path := filepath.Join(c.dir, filename)
		if err := os.WriteFile(path, chunk, 0644); err != nil {
			return fmt.Errorf("writing cache file: %w", err)
		}
	}

	return c.prune()
}

// LoadLatest reads the newest fetch generation, returning its chunks in
// write order and the fetch timestamp.
func (c *Cache) LoadLatest() ([][]byte, time.Time, error) {
	files, err := c.listFiles()
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(files) == 0 {
		return nil, time.Time{}, fmt.Errorf("no cache files found")
	}

	// Files are sorted oldest first; the last entry belongs to the newest set.
	newest := files[len(files)-1].ts

	var chunks [][]byte
	for _, f := range files {
		if !f.ts.Equal(newest) {
			continue
		}
		data, err := os.ReadFile(filepath.Join(c.dir, f.name))
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("reading cache file: %w", err)
		}
		chunks = append(chunks, data)
	}

	return chunks, newest, nil
}

type cacheFile struct {
	name  string
	ts    time.Time
	chunk int
}

func (c *Cache) listFiles() ([]cacheFile, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing cache dir: %w", err)
	}

	var files []cacheFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, "bodies_") || !strings.HasSuffix(name, ".json") {
			continue
		}
		parts := strings.Split(strings.TrimSuffix(strings.TrimPrefix(name, "bodies_"), ".json"), "_")
		if len(parts) != 2 {
			continue
		}
		unix, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			continue
		}
		chunk, err := strconv.Atoi(parts[1])
		if err != nil {
			continue
		}
		files = append(files, cacheFile{name: name, ts: time.Unix(unix, 0), chunk: chunk})
	}

	sort.Slice(files, func(i, j int) bool {
		if !files[i].ts.Equal(files[j].ts) {
			return files[i].ts.Before(files[j].ts)
		}
		return files[i].chunk < files[j].chunk
	})

	return files, nil
}

func (c *Cache) prune() error {
	files, err := c.listFiles()
	if err != nil {
		return err
	}

	// Collect distinct generation timestamps, oldest first.
	var gens []time.Time
	for _, f := range files {
		if len(gens) == 0 || !gens[len(gens)-1].Equal(f.ts) {
			gens = append(gens, f.ts)
		}
	}
	if len(gens) <= c.maxSets {
		return nil
	}

	expired := make(map[int64]bool)
	for _, ts := range gens[:len(gens)-c.maxSets] {
		expired[ts.Unix()] = true
	}

	for _, f := range files {
		if !expired[f.ts.Unix()] {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, f.name)); err != nil {
			return fmt.Errorf("pruning cache file %s: %w", f.name, err)
		}
	}

	return nil
}
