package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"pai-docqa-go/pkg/token"
)

var (
	tokenSubject string
	tokenScope   string
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue an API access token",
	Long:  `Signs a bearer token with jwt.secret from the config file.`,
	Args:  cobra.NoArgs,
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVarP(&tokenSubject, "subject", "s", "", "token subject")
	tokenCmd.Flags().StringVar(&tokenScope, "scope", "", "optional scope claim")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, _ []string) error {
	if tokenSubject == "" {
		return errors.New("--subject is required")
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.JWT.Secret == "" {
		return errors.New("jwt.secret is not configured")
	}
	manager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours)
	signed, err := manager.GenerateToken(tokenSubject, tokenScope)
	if err != nil {
		return err
	}
	cmd.Println(signed)
	return nil
}
