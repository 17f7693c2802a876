// Package display decides how CLI commands print results.
package display

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// EnvJSON forces JSON output for every command when set to a true value
const EnvJSON = "PULSEDESK_JSON"

// ShouldOutputJSON reports whether cmd should print JSON: an explicit
// --json flag wins, then a persistent --json on the root, then EnvJSON.
func ShouldOutputJSON(cmd *cobra.Command) bool {
	if cmd != nil {
		if f := cmd.Flags().Lookup("json"); f != nil && f.Changed {
			v, _ := cmd.Flags().GetBool("json")
			return v
		}
		if v, err := cmd.Root().PersistentFlags().GetBool("json"); err == nil && v {
			return true
		}
	}
	switch os.Getenv(EnvJSON) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// MarshalJSON marshals v with two-space indentation
func MarshalJSON(v interface{}) ([]byte, error) {
	return json.MarshalIndent(v, "", "  ")
}

// OutputJSON marshals and prints v
func OutputJSON(v interface{}) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
