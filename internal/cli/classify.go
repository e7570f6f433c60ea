package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mbd888/pagewatch/internal/analysis"
	"github.com/mbd888/pagewatch/internal/validation"
	"github.com/spf13/cobra"
)

func newClassifyCmd() *cobra.Command {
	var (
		output  string
		pageURL string
	)

	cmd := &cobra.Command{
		Use:   "classify FILE",
		Short: "Summarize a recorded event batch",
		Long: `Classify every event in FILE and print the batch summary. No phishing
lookup is made.

FILE is JSON or YAML ("-" reads stdin) holding either a batch
{"url": ..., "events": [...]} or a bare list of events, in which case --url
names the page.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validFormat(output); err != nil {
				return err
			}
			data, err := readInput(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			data, err = wrapBareList(data, pageURL)
			if err != nil {
				return err
			}

			req, err := analysis.DecodeBatchRequest(data)
			if err != nil {
				return describeInvalid(err)
			}
			return render(cmd.OutOrStdout(), output, analysis.Aggregate(req.Events))
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", formatJSON, "Output format: json or yaml")
	cmd.Flags().StringVar(&pageURL, "url", "", "Page URL when FILE is a bare event list")
	return cmd
}

// wrapBareList turns a top-level event array into a batch body.
func wrapBareList(data []byte, pageURL string) ([]byte, error) {
	var list []json.RawMessage
	if json.Unmarshal(data, &list) != nil {
		return data, nil
	}
	if pageURL == "" {
		return nil, errors.New("--url is required when FILE holds a bare event list")
	}
	return json.Marshal(map[string]any{"url": pageURL, "events": list})
}

// describeInvalid flattens validation errors into one line per field.
func describeInvalid(err error) error {
	var verrs validation.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msg := "invalid input:"
	for _, v := range verrs {
		msg += fmt.Sprintf("\n  %s: %s", v.Field, v.Message)
	}
	return errors.New(msg)
}
