// Package template renders html/template views into onion responses.
//
// Templates are loaded from a directory or any fs.FS and named by their path
// without extension:
//
//	engine, err := template.New(template.Config{Dir: "views"})
//
//	app.Use(func(c *onion.Context, next onion.Next) error {
//	    return engine.Render(c, 200, "home", onion.M{"title": "Home"})
//	})
//
// The rendered page becomes the response body, so handlers further out in
// the chain can still inspect or replace it.
package template

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/AchrafSoltani/onion"
)

// Config holds template engine configuration.
type Config struct {
	// Dir is the directory containing template files. Ignored by NewFromFS.
	Dir string

	// Extension is the template file extension (default: ".html").
	Extension string

	// Reload re-parses the templates on every render.
	Reload bool

	// FuncMap holds extra template functions. They override the built-ins.
	FuncMap template.FuncMap
}

// Engine holds a parsed template set.
type Engine struct {
	fsys    fs.FS
	ext     string
	reload  bool
	funcMap template.FuncMap

	mu        sync.RWMutex
	templates *template.Template
}

// New creates an engine for the templates under config.Dir.
func New(config Config) (*Engine, error) {
	if config.Dir == "" {
		config.Dir = "templates"
	}
	return newEngine(os.DirFS(config.Dir), config)
}

// NewFromFS creates an engine for the templates in fsys. Reload is honored,
// which is only useful for a filesystem that can change.
func NewFromFS(fsys fs.FS, config Config) (*Engine, error) {
	return newEngine(fsys, config)
}

func newEngine(fsys fs.FS, config Config) (*Engine, error) {
	if config.Extension == "" {
		config.Extension = ".html"
	}

	funcs := defaultFuncs()
	for name, fn := range config.FuncMap {
		funcs[name] = fn
	}

	e := &Engine{
		fsys:    fsys,
		ext:     config.Extension,
		reload:  config.Reload,
		funcMap: funcs,
	}
	if err := e.load(); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *Engine) load() error {
	tmpl := template.New("").Funcs(e.funcMap)

	err := fs.WalkDir(e.fsys, ".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, e.ext) {
			return nil
		}

		content, err := fs.ReadFile(e.fsys, path)
		if err != nil {
			return err
		}

		_, err = tmpl.New(strings.TrimSuffix(path, e.ext)).Parse(string(content))
		return err
	})
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	e.mu.Lock()
	e.templates = tmpl
	e.mu.Unlock()
	return nil
}

// Reload re-parses all templates.
func (e *Engine) Reload() error {
	return e.load()
}

// Execute writes the named template to w.
func (e *Engine) Execute(w io.Writer, name string, data any) error {
	if e.reload {
		if err := e.load(); err != nil {
			return err
		}
	}

	e.mu.RLock()
	tmpl := e.templates.Lookup(name)
	e.mu.RUnlock()
	if tmpl == nil {
		return fmt.Errorf("template not found: %s", name)
	}

	return tmpl.Execute(w, data)
}

// Render executes the named template and makes the result the HTML body of
// the response with the given status. A failed render leaves the response
// untouched and returns a 500 HTTPError.
func (e *Engine) Render(c *onion.Context, code int, name string, data any) error {
	var buf bytes.Buffer
	if err := e.Execute(&buf, name, data); err != nil {
		return onion.WrapError(http.StatusInternalServerError, "template rendering failed", err)
	}

	if err := c.Response.SetStatus(code); err != nil {
		return err
	}
	c.Response.SetType("html")
	c.Response.SetBody(buf.String())
	return nil
}

func defaultFuncs() template.FuncMap {
	return template.FuncMap{
		"safeHTML": func(s string) template.HTML { return template.HTML(s) },
		"safeURL":  func(s string) template.URL { return template.URL(s) },

		"lower":     strings.ToLower,
		"upper":     strings.ToUpper,
		"trim":      strings.TrimSpace,
		"replace":   strings.ReplaceAll,
		"contains":  strings.Contains,
		"hasPrefix": strings.HasPrefix,
		"join":      strings.Join,

		"add": func(a, b int) int { return a + b },
		"sub": func(a, b int) int { return a - b },

		"default": func(def, val any) any {
			if val == nil || val == "" || val == 0 || val == false {
				return def
			}
			return val
		},
		"plural": func(count int, singular, plural string) string {
			if count == 1 {
				return singular
			}
			return plural
		},
		"truncate": func(s string, n int) string {
			if len(s) <= n {
				return s
			}
			return s[:n] + "..."
		},
		"dict": func(values ...any) (map[string]any, error) {
			if len(values)%2 != 0 {
				return nil, fmt.Errorf("dict expects an even number of arguments")
			}
			dict := make(map[string]any, len(values)/2)
			for i := 0; i < len(values); i += 2 {
				key, ok := values[i].(string)
				if !ok {
					return nil, fmt.Errorf("dict keys must be strings")
				}
				dict[key] = values[i+1]
			}
			return dict, nil
		},
	}
}
