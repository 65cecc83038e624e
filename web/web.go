// Package web bundles the HTML templates and static assets of the UI.
package web

import (
	"embed"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"os"
	"path"
	"strings"
	"time"
)

//go:embed templates static
var content embed.FS

// Assets returns the UI files, read from dir when set and from the binary otherwise.
func Assets(dir string) fs.FS {
	if dir != "" {
		return os.DirFS(dir)
	}
	return content
}

// TemplateRegistry holds separate template instances for each page
type TemplateRegistry struct {
	templates map[string]*template.Template
}

func NewTemplateRegistry() *TemplateRegistry {
	return &TemplateRegistry{templates: make(map[string]*template.Template)}
}

func (tr *TemplateRegistry) Add(name string, tmpl *template.Template) {
	tr.templates[name] = tmpl
}

func (tr *TemplateRegistry) ExecuteTemplate(w io.Writer, name string, data interface{}) error {
	tmpl, ok := tr.templates[name]
	if !ok {
		return fmt.Errorf("template %s not found", name)
	}
	return tmpl.ExecuteTemplate(w, name, data)
}

// Names lists the registered page templates.
func (tr *TemplateRegistry) Names() []string {
	names := make([]string, 0, len(tr.templates))
	for name := range tr.templates {
		names = append(names, name)
	}
	return names
}

// LoadTemplates parses every page under templates/pages together with the
// shared layouts and partials, one template set per page.
func LoadTemplates(assets fs.FS) (*TemplateRegistry, error) {
	registry := NewTemplateRegistry()

	var sharedFiles []string
	for _, pattern := range []string{"templates/layouts/*.html", "templates/partials/*.html"} {
		files, err := fs.Glob(assets, pattern)
		if err != nil {
			return nil, err
		}
		sharedFiles = append(sharedFiles, files...)
	}

	pageFiles, err := fs.Glob(assets, "templates/pages/*.html")
	if err != nil {
		return nil, err
	}
	if len(pageFiles) == 0 {
		return nil, fmt.Errorf("no page templates found")
	}

	for _, pageFile := range pageFiles {
		pageName := path.Base(pageFile)

		tmpl := template.New(pageName).Funcs(FuncMap())
		for _, file := range append(sharedFiles, pageFile) {
			body, err := fs.ReadFile(assets, file)
			if err != nil {
				return nil, fmt.Errorf("failed to read %s: %w", file, err)
			}
			if _, err := tmpl.Parse(string(body)); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", file, err)
			}
		}

		registry.Add(pageName, tmpl)
	}

	return registry, nil
}

// FuncMap returns the helpers available to every template.
func FuncMap() template.FuncMap {
	return template.FuncMap{
		"formatTime": formatTime,
		"yesNo":      yesNo,
		"dict":       dict,
		"lower":      strings.ToLower,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04:05")
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func dict(values ...interface{}) map[string]interface{} {
	if len(values)%2 != 0 {
		return nil
	}
	d := make(map[string]interface{}, len(values)/2)
	for i := 0; i < len(values); i += 2 {
		key, ok := values[i].(string)
		if !ok {
			return nil
		}
		d[key] = values[i+1]
	}
	return d
}
