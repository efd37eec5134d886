// Package syntax provides a pluggable syntax-validation gate: given a
// project root, find the source files in scope and run an external
// per-file syntax check against them.
package syntax

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Result is the outcome of validating a project root.
type Result struct {
	Valid bool
	File  string
	Error string
}

// Validator checks the syntax of files under a project root.
type Validator interface {
	Validate(ctx context.Context, root string) (*Result, error)
}

// JSValidator shells out to `node --check` for every *.js file outside
// node_modules. Enumeration failure fails open (Valid: true) so a
// diagnostic defect in the gate itself cannot block the pipeline.
type JSValidator struct {
	NodePath string
}

// NewJSValidator resolves the node binary once; Validate reuses the result.
func NewJSValidator() *JSValidator {
	nodePath, _ := exec.LookPath("node")
	return &JSValidator{NodePath: nodePath}
}

// Validate runs `node --check` against every *.js file under root, skipping
// node_modules, stopping at the first failure.
func (v *JSValidator) Validate(ctx context.Context, root string) (*Result, error) {
	files, err := enumerateJSFiles(root)
	if err != nil {
		return &Result{Valid: true}, nil
	}

	if v.NodePath == "" {
		return &Result{Valid: true}, nil
	}

	for _, file := range files {
		cmd := exec.CommandContext(ctx, v.NodePath, "--check", file)
		output, err := cmd.CombinedOutput()
		if err != nil {
			rel, relErr := filepath.Rel(root, file)
			if relErr != nil {
				rel = file
			}
			return &Result{
				Valid: false,
				File:  rel,
				Error: strings.TrimSpace(string(output)),
			}, nil
		}
	}

	return &Result{Valid: true}, nil
}

// enumerateJSFiles walks root depth-first and returns every *.js file found
// outside any node_modules directory.
func enumerateJSFiles(root string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if info.Name() == "node_modules" {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(info.Name(), ".js") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
