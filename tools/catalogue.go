package tools

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"abbas/config"
	"abbas/model"
)

const (
	loadURLDescription   = "Answers question about content of a website. Use every time the user's message contains a link."
	webSearchDescription = "Performs a web search for the query. Use every time you need to search the Internet."
)

// Deps are the shared resources handed to tool factories.
type Deps struct {
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	Summarizer model.InferenceClient
}

// Factory builds a tool from a manifest's [options] table.
type Factory func(deps Deps, options map[string]any) (Definition, error)

// Catalogue maps tool names to the factories that build them.
type Catalogue map[string]Factory

// Builtins returns the compiled-in tools.
func Builtins() Catalogue {
	return Catalogue{
		"calculator": func(Deps, map[string]any) (Definition, error) {
			return calculatorDefinition(), nil
		},
		"load_url":   loadURLFactory,
		"web_search": webSearchFactory,
	}
}

// Manifest is one tool file in the tools directory.
type Manifest struct {
	Tool        string         `toml:"tool"`
	Description string         `toml:"description"`
	Disabled    bool           `toml:"disabled"`
	Options     map[string]any `toml:"options"`
}

// LoadDir builds a registry from the *.toml manifests in dir, in file name
// order. Files starting with "_" are ignored. When dir does not exist every
// catalogue entry is registered with default options.
func LoadDir(dir string, catalogue Catalogue, deps Deps) (*Registry, error) {
	registry := NewRegistry()

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) || dir == "" {
		names := make([]string, 0, len(catalogue))
		for name := range catalogue {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if err := registerFrom(registry, catalogue, deps, Manifest{Tool: name}); err != nil {
				return nil, err
			}
		}
		return registry, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read tools directory %s", dir)
	}

	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, "_") || filepath.Ext(name) != ".toml" {
			continue
		}

		var m Manifest
		if _, err := toml.DecodeFile(filepath.Join(dir, name), &m); err != nil {
			return nil, errors.Wrapf(err, "failed to parse tool manifest %s", name)
		}
		if m.Tool == "" {
			m.Tool = strings.TrimSuffix(name, ".toml")
		}
		if m.Disabled {
			if config.DebugLog != nil {
				config.DebugLog.Printf("[Tools] %s disabled by %s", m.Tool, name)
			}
			continue
		}
		if err := registerFrom(registry, catalogue, deps, m); err != nil {
			return nil, errors.Wrapf(err, "manifest %s", name)
		}
	}
	return registry, nil
}

func registerFrom(registry *Registry, catalogue Catalogue, deps Deps, m Manifest) error {
	factory, ok := catalogue[m.Tool]
	if !ok {
		return errors.Errorf("unknown tool %q", m.Tool)
	}
	def, err := factory(deps, m.Options)
	if err != nil {
		return errors.Wrapf(err, "failed to build %s", m.Tool)
	}
	if m.Description != "" {
		def.Description = m.Description
	}
	if config.DebugLog != nil {
		config.DebugLog.Printf("[Tools] Registered %s (%s)", def.Signature(), def.Mode)
	}
	return registry.Register(def)
}

// decodeOptions overlays a manifest's options onto out.
func decodeOptions(options map[string]any, out any) error {
	if len(options) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create options decoder")
	}
	return errors.Wrap(decoder.Decode(options), "invalid options")
}

func newWeb(deps Deps, options map[string]any) (*Web, error) {
	opts := DefaultWebOptions()
	if err := decodeOptions(options, &opts); err != nil {
		return nil, err
	}
	return NewWeb(deps.HTTPClient, deps.Limiter, deps.Summarizer, opts), nil
}

func loadURLFactory(deps Deps, options map[string]any) (Definition, error) {
	web, err := newWeb(deps, options)
	if err != nil {
		return Definition{}, err
	}
	return Definition{
		Name: "load_url",
		Params: []Param{
			{Name: "url", Kind: "str"},
			{Name: "question", Kind: "Optional[str]", Optional: true},
		},
		Description: loadURLDescription,
		Mode:        Sync,
		Invoke: func(ctx context.Context, args model.Arguments) (any, error) {
			target, err := stringArg(args, "url", true)
			if err != nil {
				return nil, err
			}
			question, err := stringArg(args, "question", false)
			if err != nil {
				return nil, err
			}
			return web.LoadURL(ctx, target, question)
		},
	}, nil
}

func webSearchFactory(deps Deps, options map[string]any) (Definition, error) {
	web, err := newWeb(deps, options)
	if err != nil {
		return Definition{}, err
	}
	return Definition{
		Name:        "web_search",
		Params:      []Param{{Name: "query", Kind: "str"}},
		Description: webSearchDescription,
		Mode:        Sync,
		Invoke: func(ctx context.Context, args model.Arguments) (any, error) {
			query, err := stringArg(args, "query", true)
			if err != nil {
				return nil, err
			}
			return web.Search(ctx, query)
		},
	}, nil
}

// stringArg reads a str parameter; None is accepted for optional ones.
func stringArg(args model.Arguments, name string, required bool) (string, error) {
	v, _ := args.Get(name)
	if v == nil && !required {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", errors.Errorf("%s must be str", name)
	}
	return s, nil
}
