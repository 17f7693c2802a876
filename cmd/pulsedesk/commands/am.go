package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/pulsedesk/am"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Show the pulsedesk configuration",
	Long: `am - Show the pulsedesk configuration ("I am")

Configuration sources (later overrides earlier):
1. Default values
2. System config (/etc/pulsedesk/config.toml)
3. User config (~/.pulsedesk/pulsedesk.toml)
4. Project config (./pulsedesk.toml, searched up directories)
5. Environment variables (PULSEDESK_* prefix)

Examples:
  pulsedesk am show                # Show current configuration
  pulsedesk am show --format yaml  # Show configuration as YAML
  pulsedesk am where               # Show which files were loaded`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runAmShow,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	RunE:  runAmWhere,
}

var configFormat string

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	AmCmd.AddCommand(amShowCmd, amWhereCmd)
}

// redacted hides the static monitoring token
func redacted(cfg *am.Config) am.Config {
	c := *cfg
	if c.Monitoring.Token != "" {
		c.Monitoring.Token = "********"
	}
	return c
}

func runAmShow(cmd *cobra.Command, args []string) error {
	loaded, err := am.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	cfg := redacted(loaded)

	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal config to JSON: %w", err)
		}
		fmt.Println(string(data))

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to YAML: %w", err)
		}
		fmt.Printf("# pulsedesk configuration\n%s", string(data))

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config to TOML: %w", err)
		}
		fmt.Printf("# pulsedesk configuration\n%s", string(data))

	default:
		return fmt.Errorf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	if _, err := am.Load(); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	loaded := make(map[string]bool)
	for _, p := range am.LoadedFrom() {
		loaded[p] = true
	}

	data := pterm.TableData{{"File", "Status"}}
	for _, p := range am.ConfigPaths() {
		status := pterm.Gray("missing")
		switch {
		case loaded[p]:
			status = pterm.Green("loaded")
		case fileExists(p):
			status = pterm.Red("unreadable")
		}
		data = append(data, []string{p, status})
	}
	data = append(data, []string{am.EnvPrefix + "_* environment", pterm.Green("applied")})
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
