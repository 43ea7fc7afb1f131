// Package hclconfig loads configuration files written in HCL.
//
// Top-level attributes and blocks become keys of the config tree. Block
// labels add one nesting level per label, so
//
//	discovery "endpoints" {
//	  catalog = "http://catalog.internal/api/catalog"
//	}
//
// yields discovery.endpoints.catalog. Expressions may reference the process
// environment through the env variable, as in env.PORT.
package hclconfig

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/specialistvlad/backplane/internal/ctxlog"
	"github.com/zclconf/go-cty/cty"
)

// Loader implements config.Loader for .hcl files.
type Loader struct {
	environ func() []string
}

// NewLoader creates a loader that exposes os.Environ as env.
func NewLoader() *Loader {
	return &Loader{environ: os.Environ}
}

// WithEnviron replaces the environment source. Tests use it to pin env.
func (l *Loader) WithEnviron(environ func() []string) *Loader {
	return &Loader{environ: environ}
}

// Extensions implements config.Loader.
func (l *Loader) Extensions() []string { return []string{".hcl"} }

// LoadFile implements config.Loader.
func (l *Loader) LoadFile(ctx context.Context, path string) (map[string]any, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Parsing HCL config file.", "file", path)

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("unexpected HCL body type %T in %s", file.Body, path)
	}

	evalCtx := l.evalContext()
	out := make(map[string]any)
	if err := decodeBody(body, evalCtx, out); err != nil {
		return nil, fmt.Errorf("failed to decode HCL file %s: %w", path, err)
	}
	return out, nil
}

func (l *Loader) evalContext() *hcl.EvalContext {
	env := make(map[string]cty.Value)
	for _, kv := range l.environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && hclsyntax.ValidIdentifier(k) {
			env[k] = cty.StringVal(v)
		}
	}
	return &hcl.EvalContext{Variables: map[string]cty.Value{"env": cty.ObjectVal(env)}}
}

func decodeBody(body *hclsyntax.Body, evalCtx *hcl.EvalContext, out map[string]any) error {
	for name, attr := range body.Attributes {
		val, diags := attr.Expr.Value(evalCtx)
		if diags.HasErrors() {
			return diags
		}
		goVal, err := fromCty(val)
		if err != nil {
			return fmt.Errorf("attribute %s: %w", name, err)
		}
		if goVal == nil {
			continue
		}
		out[name] = goVal
	}

	for _, block := range body.Blocks {
		target := out
		path := append([]string{block.Type}, block.Labels...)
		for _, key := range path {
			next, ok := target[key].(map[string]any)
			if !ok {
				if _, exists := target[key]; exists {
					return fmt.Errorf("block %s conflicts with an attribute of the same name", strings.Join(path, "."))
				}
				next = make(map[string]any)
				target[key] = next
			}
			target = next
		}
		if err := decodeBody(block.Body, evalCtx, target); err != nil {
			return err
		}
	}
	return nil
}
