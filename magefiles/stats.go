//go:build mage

// Copyright (c) 2026 Petar Djukic. All rights reserved.
// SPDX-License-Identifier: MIT

package main

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Stats prints Go line counts per top-level directory, split into
// production and test code.
func Stats() error {
	prod := map[string]int{}
	tests := map[string]int{}

	err := filepath.Walk(".", func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			switch path {
			case "vendor", ".git", binaryDir, "magefiles", "_examples":
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(path, ".go") {
			return nil
		}
		count, err := countLines(path)
		if err != nil {
			return nil
		}
		dir := filepath.Dir(path)
		if strings.HasSuffix(path, "_test.go") {
			tests[dir] += count
		} else {
			prod[dir] += count
		}
		return nil
	})
	if err != nil {
		return err
	}

	dirs := make([]string, 0, len(prod))
	for d := range prod {
		dirs = append(dirs, d)
	}
	for d := range tests {
		if _, ok := prod[d]; !ok {
			dirs = append(dirs, d)
		}
	}
	sort.Strings(dirs)

	var totalProd, totalTest int
	for _, d := range dirs {
		fmt.Printf("%-28s %6d prod %6d test\n", d, prod[d], tests[d])
		totalProd += prod[d]
		totalTest += tests[d]
	}
	fmt.Printf("%-28s %6d prod %6d test\n", "total", totalProd, totalTest)
	return nil
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	count := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		count++
	}
	return count, scanner.Err()
}
