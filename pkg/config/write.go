package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// sampleHeader tops the generated configuration file.
const sampleHeader = `# fdbridge server configuration.
#
# Every option can be overridden through the environment:
#   FDBRIDGE_<SECTION>_<KEY>  (e.g. FDBRIDGE_LOGGING_LEVEL=DEBUG)
# The transport is also selected by RPC_TRANSPORT (unix|tcp), the same
# variable the client shim reads.

`

// Write emits a commented sample configuration with the default values.
// Refuses to overwrite an existing file unless force is set.
func Write(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file %q already exists (use --force to overwrite)", path)
		}
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	out := append([]byte(sampleHeader), data...)
	if err := os.WriteFile(path, out, 0644); err != nil {
		return fmt.Errorf("write config file %q: %w", path, err)
	}
	return nil
}
