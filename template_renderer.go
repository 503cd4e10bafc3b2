package provisioning

import (
	"bytes"
	"io/fs"
	"net/http"

	"github.com/gofiber/template/django/v3"
	goerrors "github.com/goliatone/go-errors"
)

// DjangoRenderer renders email templates with the django engine
type DjangoRenderer struct {
	engine *django.Engine
}

var _ TemplateRenderer = (*DjangoRenderer)(nil)

// NewTemplateRenderer loads every .html template under fsys. A nil fsys
// uses the embedded templates.
func NewTemplateRenderer(fsys fs.FS) (*DjangoRenderer, error) {
	if fsys == nil {
		fsys = GetTemplatesFS()
	}

	engine := django.NewFileSystem(http.FS(fsys), ".html")
	if err := engine.Load(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load templates")
	}

	return &DjangoRenderer{engine: engine}, nil
}

func (r *DjangoRenderer) Render(templateID string, viewModel map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := r.engine.Render(&buf, templateID, viewModel); err != nil {
		return "", err
	}
	return buf.String(), nil
}
