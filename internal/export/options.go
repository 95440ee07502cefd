package export

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"batch-runner/internal/model"
	"batch-runner/internal/runstore"
)

const (
	DefaultFilter = "*"
	// EDrawingsFormat resolves to the eDrawings extension matching the
	// source document type.
	EDrawingsFormat = ".e"
)

var eDrawingsExtensions = map[string]string{
	".sldprt": ".eprt",
	".sldasm": ".easm",
	".slddrw": ".edrw",
}

type Options struct {
	Inputs    []string
	OutputDir string
	// Filter is a filepath.Match pattern applied to file names found in input
	// directories. Files named directly in Inputs are not filtered.
	Filter          string
	Formats         []string
	ContinueOnError bool
	// Timeout per operation in seconds; <= 0 disables it.
	Timeout   int
	Converter string
	// Version is passed to the converter as its optional third argument.
	Version string
	LogTag  string
}

// NormalizeFormat returns ext with a leading dot.
func NormalizeFormat(ext string) string {
	ext = strings.TrimSpace(ext)
	if ext == "" || strings.HasPrefix(ext, ".") {
		return ext
	}
	return "." + ext
}

func formatDefinitions(formats []string) ([]model.OperationDefinition, error) {
	if len(formats) == 0 {
		return nil, model.NewValidationError("formats", "specify at least one output format")
	}
	defs := make([]model.OperationDefinition, 0, len(formats))
	for _, f := range formats {
		ext := NormalizeFormat(f)
		if ext == "" || ext == "." {
			return nil, model.NewValidationError("formats", "output format must not be empty")
		}
		defs = append(defs, model.OperationDefinition{Name: ext, Extension: ext})
	}
	return defs, nil
}

// collectFiles expands inputs into source files. Directories are walked
// recursively in lexical order.
func collectFiles(inputs []string, filter string) ([]string, error) {
	if filter == "" {
		filter = DefaultFilter
	}
	if _, err := filepath.Match(filter, ""); err != nil {
		return nil, model.NewValidationError("filter", "invalid filter "+filter)
	}
	if len(inputs) == 0 {
		return nil, model.NewValidationError("inputs", "specify input file or directory")
	}

	var files []string
	for _, input := range inputs {
		info, err := os.Stat(input)
		if err != nil {
			return nil, model.NewValidationError("inputs", "specify input file or directory")
		}
		if !info.IsDir() {
			files = append(files, input)
			continue
		}
		err = filepath.WalkDir(input, func(path string, d fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if d.IsDir() {
				if d.Name() == runstore.LockDirName {
					return filepath.SkipDir
				}
				return nil
			}
			if ok, _ := filepath.Match(filter, d.Name()); ok {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

// targetPath is where src is exported for ext before collision handling.
func targetPath(src, outDir, ext string) (string, error) {
	if strings.EqualFold(ext, EDrawingsFormat) {
		mapped, ok := eDrawingsExtensions[strings.ToLower(filepath.Ext(src))]
		if !ok {
			return "", model.NewValidationError("formats", EDrawingsFormat+" format is only applicable for SOLIDWORKS files")
		}
		ext = mapped
	}
	dir := outDir
	if dir == "" {
		dir = filepath.Dir(src)
	}
	stem := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	return filepath.Join(dir, stem+ext), nil
}
