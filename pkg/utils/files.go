package utils

import (
	"path/filepath"
	"regexp"
	"strings"
)

var notIdentifier = regexp.MustCompile(`[^A-Za-z0-9_]`)

func GetPathInfo(relPath string) (fullPath string, parentDir string, err error) {
	// Convert to absolute path (resolves ../../ and cleans the path)
	fullPath, err = filepath.Abs(relPath)
	if err != nil {
		return "", "", err
	}

	// Get the directory containing the file
	parentDir = filepath.Dir(fullPath)

	return fullPath, parentDir, nil
}

// ClassName derives a JVM class name from a source file name: the base
// name without extension, with every character outside [A-Za-z0-9_]
// replaced by an underscore.
func ClassName(path string) string {
	base := filepath.Base(path)
	name := notIdentifier.ReplaceAllString(strings.TrimSuffix(base, filepath.Ext(base)), "_")
	if name == "" || (name[0] >= '0' && name[0] <= '9') {
		name = "_" + name
	}
	return name
}

// ClassPath is where the class compiled from src is written: next to the
// source, or in outDir when set.
func ClassPath(src, outDir string) (string, error) {
	fullPath, parentDir, err := GetPathInfo(src)
	if err != nil {
		return "", err
	}
	if outDir != "" {
		parentDir = outDir
	}
	return filepath.Join(parentDir, ClassName(fullPath)+".class"), nil
}
