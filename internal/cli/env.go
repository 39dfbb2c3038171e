package cli

import (
	"strconv"

	"github.com/spf13/cobra"

	"github.com/klubi/stratus/internal/env"
)

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "Show what kind of machine stratus is running on",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := struct {
				CIProvider     string `json:"ciProvider" yaml:"ciProvider"`
				CI             bool   `json:"ci" yaml:"ci"`
				MacOS          bool   `json:"macOS" yaml:"macOS"`
				PersonalDevice bool   `json:"personalDevice" yaml:"personalDevice"`
			}{env.Provider(), env.IsCI(), env.IsMacOS(), env.IsPersonalDevice()}

			if structured() {
				return encode(info)
			}
			provider := info.CIProvider
			if provider == "" {
				provider = "<none>"
			}
			printField("CI Provider", provider)
			printField("CI", strconv.FormatBool(info.CI))
			printField("macOS", strconv.FormatBool(info.MacOS))
			printField("Personal Device", strconv.FormatBool(info.PersonalDevice))
			return nil
		},
	}
}
