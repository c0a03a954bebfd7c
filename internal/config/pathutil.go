package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"mtfchart/pkg/broker"
	"mtfchart/pkg/confkit"
)

// ProjectRoot locates the repository root by walking upward from this file
// until a directory holding go.mod or .git is found. Falls back to the
// working directory.
func ProjectRoot() (string, error) {
	if _, file, _, ok := runtime.Caller(0); ok {
		if root, found := confkit.FindUp(filepath.Dir(file), "go.mod", ".git"); found {
			return root, nil
		}
	}
	wd, err := os.Getwd()
	if err != nil {
		return ".", err
	}
	return wd, nil
}

// MustProjectRoot is like ProjectRoot but ignores the error.
func MustProjectRoot() string {
	root, _ := ProjectRoot()
	return root
}

// ProjectPath joins the project root with rel.
func ProjectPath(rel string) (string, error) {
	root, err := ProjectRoot()
	if err != nil {
		return "", err
	}
	return filepath.Join(root, rel), nil
}

// MustLoadBroker loads etc/broker.yaml from the project root and panics on
// error. Tests that only need broker providers use it to skip the main config.
func MustLoadBroker() *broker.Config {
	path := filepath.Join(MustProjectRoot(), "etc", "broker.yaml")
	cfg, err := broker.LoadConfig(path)
	if err != nil {
		panic(fmt.Errorf("load broker config %s: %w", path, err))
	}
	return cfg
}
