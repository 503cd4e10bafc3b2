package provisioning_test

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-provisioning"
)

func TestTemplateRendererEmbeddedInvitation(t *testing.T) {
	renderer, err := provisioning.NewTemplateRenderer(nil)
	require.NoError(t, err)

	body, err := renderer.Render(provisioning.DefaultInvitationTemplate, map[string]any{
		"Email":           "olena@example.com",
		"Password":        "Temp7Passw0rd",
		"ConfirmationUrl": "https://app.example.com/confirm",
	})
	require.NoError(t, err)

	assert.Contains(t, body, "olena@example.com")
	assert.Contains(t, body, "Temp7Passw0rd")
	assert.Contains(t, body, `href="https://app.example.com/confirm"`)
}

func TestTemplateRendererCustomFS(t *testing.T) {
	fsys := fstest.MapFS{
		"email/custom.html": &fstest.MapFile{Data: []byte("Hello {{ Email }}")},
	}

	renderer, err := provisioning.NewTemplateRenderer(fsys)
	require.NoError(t, err)

	body, err := renderer.Render("email/custom", map[string]any{"Email": "olena@example.com"})
	require.NoError(t, err)
	assert.Equal(t, "Hello olena@example.com", body)

	_, err = renderer.Render("email/missing", nil)
	assert.Error(t, err)
}
