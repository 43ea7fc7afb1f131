package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ListenSettings is the address of the root HTTP server.
type ListenSettings struct {
	Host string `validate:"omitempty,hostname_rfc1123|ip"`
	Port int    `validate:"gte=0,lte=65535"`
}

// BackendSettings is the typed view of the "backend" section.
type BackendSettings struct {
	Listen  ListenSettings
	BaseURL string `validate:"omitempty,url"`
}

// DefaultListenPort binds an ephemeral port.
const DefaultListenPort = 0

// LoadBackendSettings decodes and validates the "backend" section of cfg.
func LoadBackendSettings(cfg *Config) (BackendSettings, error) {
	s := BackendSettings{
		Listen: ListenSettings{Host: cfg.StringOr("backend.listen.host", ""), Port: DefaultListenPort},
	}

	port, ok, err := cfg.Int("backend.listen.port")
	if err != nil {
		return s, err
	}
	if ok {
		s.Listen.Port = port
	}
	base, _, err := cfg.String("backend.base_url")
	if err != nil {
		return s, err
	}
	s.BaseURL = strings.TrimRight(base, "/")

	if err := validate.Struct(s); err != nil {
		return s, formatValidationError(err)
	}
	return s, nil
}

func formatValidationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, e := range verrs {
		switch e.Tag() {
		case "gte", "lte":
			msgs = append(msgs, fmt.Sprintf("%s must be between 0 and 65535", strings.ToLower(e.Namespace())))
		case "url":
			msgs = append(msgs, fmt.Sprintf("%s must be a valid URL", strings.ToLower(e.Namespace())))
		default:
			msgs = append(msgs, fmt.Sprintf("%s is invalid", strings.ToLower(e.Namespace())))
		}
	}
	return fmt.Errorf("invalid backend settings: %s", strings.Join(msgs, "; "))
}
