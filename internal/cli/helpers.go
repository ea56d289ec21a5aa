package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/strato-labs/stratoctl/pkg/engine"
	"github.com/strato-labs/stratoctl/pkg/provider"
	"github.com/strato-labs/stratoctl/pkg/secrets"
	"github.com/strato-labs/stratoctl/pkg/state"
	"github.com/strato-labs/stratoctl/pkg/state/backend"
)

// buildEngine wires the backend, provider, and secrets into an engine using
// the command's persistent flags.
func buildEngine(cmd *cobra.Command, parallelism int) (*engine.Engine, error) {
	backendConfig, err := keyValueFlag(cmd, "backend-config")
	if err != nil {
		return nil, err
	}

	manager, err := state.NewManagerFromConfig(backend.Config{
		Type:   viper.GetString("backend"),
		Config: backendConfig,
	})
	if err != nil {
		return nil, err
	}

	providerConfig, err := keyValueFlag(cmd, "provider-config")
	if err != nil {
		return nil, err
	}

	prov, err := provider.Create(viper.GetString("provider"), providerConfig)
	if err != nil {
		return nil, err
	}

	return engine.New(manager, prov, engine.Options{
		Parallelism: parallelism,
		Secrets:     secrets.DefaultManager(),
		Logger:      logger,
	}), nil
}

func keyValueFlag(cmd *cobra.Command, name string) (map[string]string, error) {
	values, err := cmd.Flags().GetStringArray(name)
	if err != nil {
		return nil, err
	}

	out := make(map[string]string, len(values))
	for _, kv := range values {
		key, value, found := strings.Cut(kv, "=")
		if !found {
			return nil, fmt.Errorf("invalid --%s value %q, expected key=value", name, kv)
		}
		out[key] = value
	}
	return out, nil
}

// collectVars merges --var-file values with --var overrides, later sources
// winning.
func collectVars(varFlags []string, varFiles []string) (map[string]interface{}, error) {
	vars := make(map[string]interface{})

	for _, file := range varFiles {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read var file %s: %w", file, err)
		}
		fileVars := make(map[string]interface{})
		if err := yaml.Unmarshal(data, &fileVars); err != nil {
			return nil, fmt.Errorf("failed to parse var file %s: %w", file, err)
		}
		for k, v := range fileVars {
			vars[k] = v
		}
	}

	for _, kv := range varFlags {
		key, value, found := strings.Cut(kv, "=")
		if !found {
			return nil, fmt.Errorf("invalid --var value %q, expected name=value", kv)
		}
		vars[key] = parseVarValue(value)
	}

	return vars, nil
}

// parseVarValue interprets a --var value as YAML so numbers, booleans, and
// lists work without extra quoting; anything unparsable stays a string.
func parseVarValue(raw string) interface{} {
	var parsed interface{}
	if err := yaml.Unmarshal([]byte(raw), &parsed); err != nil {
		return raw
	}
	if parsed == nil {
		return raw
	}
	return parsed
}

// confirm prompts for an explicit "yes" on the terminal. Without a TTY the
// caller must pass --auto-approve.
func confirm(cmd *cobra.Command, prompt string) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, fmt.Errorf("standard input is not a terminal; use --auto-approve to proceed without confirmation")
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%s\n  Only 'yes' is accepted to approve.\n\n  Enter a value: ", prompt)

	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(line) == "yes", nil
}
