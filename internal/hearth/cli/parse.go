package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bdobrica/hearth/internal/hearth/intent"
)

var parseCmd = &cobra.Command{
	Use:   "parse <message>",
	Short: "Print the intent a message parses to, without touching the calendar",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runParse,
}

func init() {
	addIdentityFlags(parseCmd)
}

type parseOutput struct {
	Strategy intent.Strategy `json:"strategy"`
	Intent   intent.Intent   `json:"intent"`
}

func runParse(cmd *cobra.Command, args []string) error {
	a, err := loadApp(cmd)
	if err != nil {
		return err
	}
	defer a.Stop()

	rc := identityFromFlags(cmd, a.Config().Timezone)
	in, strategy, err := a.Parser.ParseWithStrategy(cmd.Context(), strings.Join(args, " "), rc)
	if err != nil {
		return fmt.Errorf("parse: %w", err)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(parseOutput{Strategy: strategy, Intent: in})
}
