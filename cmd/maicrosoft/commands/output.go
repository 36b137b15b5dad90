package commands

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/vizi2000/maicrosoft/pkg/engine"
	"github.com/vizi2000/maicrosoft/pkg/validate"
)

const summaryRounding = time.Millisecond

// planExtensions are the file extensions treated as plan documents when
// walking a directory.
var planExtensions = map[string]bool{
	".yaml": true,
	".yml":  true,
	".json": true,
	".cue":  true,
}

// collectPlanFiles expands the argument list into plan files. Files are
// taken as given; directories are walked recursively in lexical order so
// batch output is stable.
func collectPlanFiles(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", arg, err)
		}

		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}

		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") && path != arg {
					return filepath.SkipDir
				}
				return nil
			}
			if planExtensions[filepath.Ext(path)] {
				paths = append(paths, path)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", arg, err)
		}
	}
	return paths, nil
}

// printReport writes one plan's verdict and findings to stdout.
func printReport(path string, r *engine.ValidationReport) {
	res := r.Result
	if res.Valid {
		fmt.Printf("✓ %s: valid (plan %s, target %s)\n", path, r.PlanID, r.Target)
	} else {
		fmt.Printf("✗ %s: invalid (%d violations)\n", path, len(res.Violations))
	}

	for _, v := range res.Violations {
		fmt.Printf("    [%s] %s%s\n", v.Code, violationSite(v), v.Message)
	}
	for _, w := range res.Warnings {
		fmt.Printf("    warning [%s] %s%s\n", w.Code, violationSite(w), w.Message)
	}
}

func violationSite(v validate.Violation) string {
	if v.NodeID == "" {
		return ""
	}
	if v.Field != "" {
		return fmt.Sprintf("node %s, %s: ", v.NodeID, v.Field)
	}
	return fmt.Sprintf("node %s: ", v.NodeID)
}

// batchFileResult is one file's outcome in JSON batch output. Engine
// faults render as a string because error values do not marshal.
type batchFileResult struct {
	Path   string                   `json:"path"`
	Report *engine.ValidationReport `json:"report,omitempty"`
	Error  string                   `json:"error,omitempty"`
}

type batchResult struct {
	Results []batchFileResult    `json:"results"`
	Summary *engine.BatchSummary `json:"summary"`
}

func batchOutput(items []engine.BatchItem, summary *engine.BatchSummary) *batchResult {
	out := &batchResult{
		Results: make([]batchFileResult, 0, len(items)),
		Summary: summary,
	}
	for _, item := range items {
		r := batchFileResult{Path: item.Path, Report: item.Report}
		if item.Err != nil {
			r.Error = item.Err.Error()
		}
		out.Results = append(out.Results, r)
	}
	return out
}
