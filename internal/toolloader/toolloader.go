// Copyright (c) The OpenTofu Authors
// SPDX-License-Identifier: MPL-2.0

// Package toolloader turns configured plugins into live tools.
package toolloader

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sync/errgroup"

	"github.com/toolproto/proto/internal/addrs"
	"github.com/toolproto/proto/internal/environment"
	"github.com/toolproto/proto/internal/logging"
	"github.com/toolproto/proto/internal/sandbox"
	"github.com/toolproto/proto/internal/tool"
	"github.com/toolproto/proto/internal/tracing"
	"github.com/toolproto/proto/internal/tracing/traceattrs"
)

// SchemaConfigKey is the plugin configuration key that carries a schema
// document to the schema plugin.
const SchemaConfigKey = "schema"

// LoadSchemaPlugin makes sure the shared schema plugin is in the plugin
// cache and returns its local path.
func LoadSchemaPlugin(ctx context.Context, env *environment.Environment) (string, error) {
	cfg, err := env.LoadConfig()
	if err != nil {
		return "", err
	}
	loader, err := env.PluginLoader()
	if err != nil {
		return "", err
	}
	return loader.LoadPlugin(ctx, addrs.SchemaPluginID, cfg.SchemaPluginLocator())
}

// LoadTool loads a configured tool.
func LoadTool(ctx context.Context, env *environment.Environment, id addrs.ToolID) (*tool.Tool, error) {
	cfg, err := env.LoadConfig()
	if err != nil {
		return nil, err
	}
	locator, ok := cfg.PluginLocator(id)
	if !ok {
		return nil, &ToolLoadError{ID: id, Err: ErrNoPlugin}
	}
	return LoadToolFromLocator(ctx, id, env, locator)
}

// LoadToolFromLocator loads the plugin at locator and registers it as the
// tool id. A locator naming a schema document is run by the schema
// plugin, with the document as its configuration.
func LoadToolFromLocator(ctx context.Context, id addrs.ToolID, env *environment.Environment, locator addrs.PluginLocator) (*tool.Tool, error) {
	ctx, span := tracing.Tracer().Start(ctx, "Load tool",
		tracing.SpanAttributes(
			traceattrs.ToolID(id.String()),
			traceattrs.PluginLocator(locator.String()),
		),
	)
	defer span.End()

	t, err := loadToolFromLocator(ctx, id, env, locator)
	if err != nil {
		err = &ToolLoadError{ID: id, Locator: locator, Err: err}
		tracing.SetSpanError(span, err)
		return nil, err
	}
	return t, nil
}

func loadToolFromLocator(ctx context.Context, id addrs.ToolID, env *environment.Environment, locator addrs.PluginLocator) (*tool.Tool, error) {
	loader, err := env.PluginLoader()
	if err != nil {
		return nil, err
	}
	path, err := loader.LoadPlugin(ctx, id, locator)
	if err != nil {
		return nil, err
	}

	manifest := sandbox.Manifest{
		ID:           id,
		Path:         path,
		VirtualPaths: env.VirtualPaths(),
		Env: map[string]string{
			"PROTO_TOOL_ID": id.String(),
		},
	}
	if addrs.IsSchemaDocument(locator) {
		schema, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read schema: %w", err)
		}
		// Already cached by LoadTools; this only fetches when a single
		// tool is loaded on its own.
		schemaPlugin, err := LoadSchemaPlugin(ctx, env)
		if err != nil {
			return nil, fmt.Errorf("failed to load schema plugin: %w", err)
		}
		manifest.Path = schemaPlugin
		manifest.Config = map[string]string{SchemaConfigKey: string(schema)}
	}

	handle, err := env.Runtime().Instantiate(ctx, manifest)
	if err != nil {
		return nil, err
	}
	t, err := tool.New(ctx, id, env, handle, locator)
	if err != nil {
		if closeErr := handle.Close(); closeErr != nil {
			log.Printf("[WARN] Failed to close plugin for %s: %s", id, closeErr)
		}
		return nil, err
	}
	return t, nil
}

// LoadTools loads every configured tool, or only those in filter when
// filter is non-empty. The schema plugin is never returned as a tool.
//
// Tools are loaded concurrently and returned in no particular order. If
// any tool fails to load then LoadTools fails and returns no tools.
func LoadTools(ctx context.Context, env *environment.Environment, filter addrs.ToolIDSet) ([]*tool.Tool, error) {
	cfg, err := env.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Fetching the schema plugin up front means concurrent schema-driven
	// tools only ever read it from the cache.
	if _, err := LoadSchemaPlugin(ctx, env); err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var tools []*tool.Tool
	var errs *multierror.Error

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range cfg.ToolIDs() {
		if filter.Len() > 0 && !filter.Has(id) {
			continue
		}
		locator, _ := cfg.PluginLocator(id)
		g.Go(func() error {
			t, err := LoadToolFromLocator(gctx, id, env, locator)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = multierror.Append(errs, err)
				return err
			}
			tools = append(tools, t)
			return nil
		})
	}
	firstErr := g.Wait()

	if firstErr != nil {
		log.Printf("[ERROR] %d of the selected tools failed to load:\n%s", errs.Len(), logging.Indent(errs.Error()))
		for _, t := range tools {
			if err := t.Close(); err != nil {
				log.Printf("[WARN] Failed to close plugin for %s: %s", t.ID, err)
			}
		}
		return nil, firstErr
	}
	log.Printf("[DEBUG] Loaded %d tools", len(tools))
	return tools, nil
}
