package services

import (
	"fmt"
	"strings"

	sagaDomain "github.com/davicafu/orchestrix/internal/saga/domain"
)

// StaticResolver asocia servicios con URLs a partir de la configuración.
// Los overrides explícitos ganan; el resto cuelga de baseURL.
type StaticResolver struct {
	baseURL   string
	overrides map[string]string
}

func NewStaticResolver(baseURL string, overrides map[string]string) *StaticResolver {
	o := make(map[string]string, len(overrides))
	for k, v := range overrides {
		o[k] = v
	}
	return &StaticResolver{baseURL: strings.TrimRight(baseURL, "/"), overrides: o}
}

func (r *StaticResolver) Resolve(service string) (string, error) {
	if u, ok := r.overrides[service]; ok {
		return u, nil
	}
	if r.baseURL == "" || service == "" {
		return "", fmt.Errorf("%w: %q", sagaDomain.ErrUnknownService, service)
	}
	return r.baseURL + "/" + service, nil
}

var _ sagaDomain.ServiceResolver = (*StaticResolver)(nil)
