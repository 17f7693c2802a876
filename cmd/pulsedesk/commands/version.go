package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/pulsedesk/display"
	"github.com/teranos/pulsedesk/version"
)

// VersionCmd represents the version command
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show pulsedesk version information",
	Long:  `Display version, build time, commit hash, and platform information for the pulsedesk binary.`,
	Run: func(cmd *cobra.Command, args []string) {
		info := version.Get()
		if display.ShouldOutputJSON(cmd) {
			if err := display.OutputJSON(info); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Error formatting JSON: %v\n", err)
			}
			return
		}
		fmt.Println(info.String())
	},
}

func init() {
	VersionCmd.Flags().BoolP("json", "j", false, "Output version info as JSON")
}
