package cli

import (
	"context"
	"errors"
	"strings"

	"github.com/spf13/cobra"
)

var askDocID string

var askCmd = &cobra.Command{
	Use:   "ask [query]",
	Short: "Ask a question about one document",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askDocID, "doc", "d", "", "document id")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	if askDocID == "" {
		return errors.New("--doc is required")
	}
	ctx := context.Background()
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Query.Answer(ctx, strings.Join(args, " "), askDocID)
	if err != nil {
		return err
	}
	if outputJSON {
		return printJSON(cmd, res)
	}
	cmd.Println(res.Answer)
	cmd.Println()
	cmd.Printf("Citation:   %s\n", res.Citation)
	cmd.Printf("Confidence: %.2f\n", res.Confidence)
	return nil
}
