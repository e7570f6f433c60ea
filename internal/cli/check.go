package cli

import (
	"errors"
	"fmt"

	"github.com/mbd888/pagewatch/internal/config"
	"github.com/mbd888/pagewatch/internal/phishing"
	"github.com/mbd888/pagewatch/internal/validation"
	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	var (
		output  string
		baseURL string
	)

	cmd := &cobra.Command{
		Use:   "check URL",
		Short: "Ask the phishing analyzer about a page URL",
		Long: `Send URL to the phishing analyzer the API is configured with
(AI_SERVER_BASE_URL, AI_SERVER_ANALYZE_PATH, AI_SERVER_TIMEOUT_SECONDS, or a
.env file) and print its verdict. One attempt, no retries.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(output); err != nil {
				return err
			}
			if verr := validation.AbsoluteURL("url", args[0])(); verr != nil {
				return fmt.Errorf("%s: %s", verr.Field, verr.Message)
			}

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			pcfg := cfg.PhishingConfig()
			if baseURL != "" {
				pcfg.BaseURL = baseURL
			}

			verdict, err := phishing.NewClient(pcfg).Analyze(cmd.Context(), args[0])
			if err != nil {
				var lerr *phishing.Error
				if errors.As(err, &lerr) {
					return fmt.Errorf("%s: %s", lerr.Code, lerr.Message())
				}
				return err
			}
			return render(cmd.OutOrStdout(), output, verdict)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", formatJSON, "Output format: json or yaml")
	cmd.Flags().StringVar(&baseURL, "ai-server", "", "Override AI_SERVER_BASE_URL")
	return cmd
}
