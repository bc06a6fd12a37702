package config

import (
	"fmt"
	"os"

	"github.com/danmuck/lanesight/internal/service"
	"github.com/pelletier/go-toml/v2"
)

const templateHeader = `# lanesight configuration.
# cid 253 is the replay conference, 112 the live vehicle.
# transport is "udp" (multicast 225.0.0.<cid>:12175) or "redis".

`

// Template renders the default service configuration as TOML.
func Template() (string, error) {
	body, err := toml.Marshal(FromService(service.DefaultServiceConfig()))
	if err != nil {
		return "", fmt.Errorf("render config template: %w", err)
	}
	return templateHeader + string(body), nil
}

func WriteTemplate(path string, overwrite bool) error {
	template, err := Template()
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}
