package update

import (
	"os"

	"github.com/adamancini/hatch/internal/config"
)

// EnvHost is a Host backed by the process environment. The portable
// marker is read from MarkerEnv on every call.
type EnvHost struct {
	AppVersion string
	MarkerEnv  string
	QuitFunc   func()
}

// NewEnvHost returns an EnvHost for version reading the default marker.
func NewEnvHost(version string, quit func()) *EnvHost {
	return &EnvHost{AppVersion: version, MarkerEnv: config.DefaultMarkerEnv, QuitFunc: quit}
}

// Quit calls QuitFunc when set.
func (h *EnvHost) Quit() {
	if h.QuitFunc != nil {
		h.QuitFunc()
	}
}

// Version returns AppVersion.
func (h *EnvHost) Version() string {
	return h.AppVersion
}

// PortableExecutable returns the marker's value.
func (h *EnvHost) PortableExecutable() (string, bool) {
	env := h.MarkerEnv
	if env == "" {
		env = config.DefaultMarkerEnv
	}
	v := os.Getenv(env)
	return v, v != ""
}
