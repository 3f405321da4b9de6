package public

import "github.com/sitegrade/sitegrade/internal/provider"

// Handler serves the public audit API.
type Handler struct {
	*provider.Container
}

// New creates the public handler.
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}
