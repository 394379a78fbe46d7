package main

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// numberedFileRe matches sequenced fixtures such as "mock-writing.2.json".
var numberedFileRe = regexp.MustCompile(`^(.+)\.(\d+)\.json$`)

// loadFixtures reads every .json file under dir into model -> reply sequence.
// Numbered files come first in numeric order, then the base file.
func loadFixtures(dir string) (map[string][]string, error) {
	base := make(map[string]string)
	numbered := make(map[string]map[int]string)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}
		content, err := fixtureContent(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}

		if m := numberedFileRe.FindStringSubmatch(d.Name()); m != nil {
			idx, _ := strconv.Atoi(m[2])
			if numbered[m[1]] == nil {
				numbered[m[1]] = make(map[int]string)
			}
			numbered[m[1]][idx] = content
			return nil
		}
		base[strings.TrimSuffix(d.Name(), ".json")] = content
		return nil
	})
	if err != nil {
		return nil, err
	}

	fixtures := make(map[string][]string)
	for model, byIdx := range numbered {
		indices := make([]int, 0, len(byIdx))
		for i := range byIdx {
			indices = append(indices, i)
		}
		sort.Ints(indices)
		for _, i := range indices {
			fixtures[model] = append(fixtures[model], byIdx[i])
		}
	}
	for model, content := range base {
		fixtures[model] = append(fixtures[model], content)
	}

	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no fixture files found in %s", dir)
	}
	return fixtures, nil
}

// fixtureContent unwraps a JSON string into plain text. Objects and arrays
// are kept as written so structured stages get parseable JSON.
func fixtureContent(data []byte) (string, error) {
	if !json.Valid(data) {
		return "", fmt.Errorf("invalid JSON")
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return s, nil
	}
	return strings.TrimSpace(string(data)), nil
}
