package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xgate/xgate-go"
)

func newClassifyCommand(o *options) *cobra.Command {
	return &cobra.Command{
		Use:     "classify MESSAGE",
		Short:   "Classify a transport error message",
		Example: `  xgate classify "dial tcp 10.0.0.1:443: connect: connection refused"`,
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			msg := strings.Join(args, " ")
			netErr := &xgate.NetworkError{
				ErrKind: xgate.Classify(msg, nil),
				Message: msg,
			}

			fmt.Fprintf(o.out, "kind: %s\n", netErr.Kind())
			fmt.Fprintf(o.out, "retryable: %t\n", netErr.IsRetryable())
			if netErr.IsRetryable() {
				fmt.Fprintf(o.out, "recommended delay: %s\n", netErr.RecommendedRetryDelay())
			}
			fmt.Fprintf(o.out, "suggestion: %s\n", netErr.Suggestion())
			return nil
		},
	}
}
