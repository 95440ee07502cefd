package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
)

type jobFileRoot struct {
	Export *Partial `hcl:"export,block"`
	Remain hcl.Body `hcl:",remain"`
}

// LoadJobFile reads the export block of an HCL job file.
func LoadJobFile(path string) (Partial, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return Partial{}, fmt.Errorf("parse job file %s: %w", path, diags)
	}

	var root jobFileRoot
	if diags := gohcl.DecodeBody(file.Body, nil, &root); diags.HasErrors() {
		return Partial{}, fmt.Errorf("decode job file %s: %w", path, diags)
	}
	if root.Export == nil {
		return Partial{}, fmt.Errorf("job file %s: missing export block", path)
	}
	return *root.Export, nil
}
