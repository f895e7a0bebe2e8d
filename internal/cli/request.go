package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/xgate/xgate-go"
)

func newRequestCommand(o *options) *cobra.Command {
	var data, idempotencyKey string

	cmd := &cobra.Command{
		Use:   "request METHOD PATH",
		Short: "Send a request and print the response body",
		Example: `  xgate request GET /customers/123
  xgate request POST /deposits --data '{"amount": 10}'`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.loadConfig()
			if err != nil {
				return err
			}

			opts := append(cfg.ClientOptions(),
				xgate.WithLogger(xgate.NewSlogLogger(o.logger)),
				xgate.WithMiddleware(xgate.RequestIDMiddleware("")),
				xgate.WithMiddleware(xgate.LoggingMiddleware(xgate.NewSlogLogger(o.logger))),
			)
			client, err := xgate.New(opts...)
			if err != nil {
				return err
			}

			var body any
			if data != "" {
				if !json.Valid([]byte(data)) {
					return errors.New("--data is not valid JSON")
				}
				body = json.RawMessage(data)
			}

			method := strings.ToUpper(args[0])
			var reqOpts []xgate.RequestOption
			if cmd.Flags().Changed("idempotency-key") {
				reqOpts = append(reqOpts, xgate.WithIdempotencyKey(idempotencyKey))
			}
			resp, err := client.Execute(cmd.Context(), method, args[1], body, reqOpts...)
			if err != nil {
				printError(o.out, err)
				return err
			}

			attrs := []any{"status", resp.StatusCode, "attempts", resp.Attempts}
			if info := resp.RateLimit(time.Now()); info.Remaining != nil {
				attrs = append(attrs, "rate_limit_remaining", *info.Remaining)
			}
			o.logger.Debug("response received", attrs...)

			_, err = fmt.Fprintln(o.out, resp.String())
			return err
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body")
	cmd.Flags().StringVar(&idempotencyKey, "idempotency-key", "", "Idempotency-Key sent on every attempt; empty generates one")
	return cmd
}

func printError(w io.Writer, err error) {
	fmt.Fprintf(w, "error: %v\n", err)
	fmt.Fprintf(w, "kind: %s\n", xgate.KindOf(err))
	fmt.Fprintf(w, "retryable: %t\n", xgate.IsRetryable(err))

	if apiErr, ok := xgate.AsAPIError(err); ok {
		fmt.Fprintf(w, "status: %d %s\n", apiErr.StatusCode, http.StatusText(apiErr.StatusCode))
	}

	if rle, ok := xgate.AsRateLimitError(err); ok {
		if secs, ok := rle.RetryAfter(); ok {
			fmt.Fprintf(w, "retry after: %ds\n", secs)
		}
		if pct, ok := rle.UsagePercent(); ok {
			fmt.Fprintf(w, "usage: %.0f%%\n", pct)
		}
		if reset, ok := rle.ResetTime(); ok {
			fmt.Fprintf(w, "resets at: %s\n", reset.UTC().Format("2006-01-02T15:04:05Z"))
		}
	}

	var fields *xgate.ValidationError
	if errors.As(err, &fields) {
		for _, name := range fields.FieldNames() {
			fmt.Fprintf(w, "field %s: %s\n", name, strings.Join(fields.FieldErrors(name), "; "))
		}
	}

	var ce xgate.ClassifiedError
	if errors.As(err, &ce) {
		fmt.Fprintf(w, "suggestion: %s\n", ce.Suggestion())
	}
}
