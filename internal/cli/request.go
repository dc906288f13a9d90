package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/devops-sunny/turbofetch"
)

type callFlagValues struct {
	headers      []string
	page         string
	timeout      time.Duration
	offlineCache bool
}

var (
	callFlags   callFlagValues
	requestData string
	contentType string
)

var requestCmd = &cobra.Command{
	Use:   "request <method> <path>",
	Short: "Send one HTTP call",
	Long: `Send one HTTP call through the configured client.

The path is joined to client.baseurl unless it is an absolute URL. A --data
value that is valid JSON is sent as application/json; anything else is sent
as text. Prefix the value with @ to read it from a file.`,
	Example: `  # GET relative to the configured base URL
  fetchctl request GET /items

  # POST a JSON payload, attributed to a page
  fetchctl request POST /items -d '{"name":"x"}' --page /dashboard

  # PUT the contents of a file with a custom header
  fetchctl request PUT https://api.example.com/items/1 -d @item.json -H 'X-Team: payments'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := requestBody(requestData, contentType)
		if err != nil {
			return err
		}
		return runCall(cmd, func(ctx context.Context, client *turbofetch.Client, opts []turbofetch.CallOption) (*turbofetch.Response, error) {
			return client.Do(ctx, client.NewRequest(ctx, strings.ToUpper(args[0]), args[1], body, opts...))
		})
	},
}

var uploadCmd = &cobra.Command{
	Use:   "upload <path> <file>",
	Short: "Upload a file as multipart/form-data",
	Long: `Upload a file as the "file" field of a multipart/form-data POST.
The boundary and Content-Type header are generated by the client.`,
	Example: `  fetchctl upload /attachments ./report.pdf --content-type application/pdf`,
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[1])
		if err != nil {
			return err
		}
		defer f.Close()

		file := turbofetch.File{
			Name:        filepath.Base(args[1]),
			ContentType: contentType,
			Content:     f,
		}
		return runCall(cmd, func(ctx context.Context, client *turbofetch.Client, opts []turbofetch.CallOption) (*turbofetch.Response, error) {
			return client.Upload(ctx, args[0], file, opts...)
		})
	},
}

func init() {
	for _, cmd := range []*cobra.Command{requestCmd, uploadCmd} {
		cmd.Flags().StringArrayVarP(&callFlags.headers, "header", "H", nil, "Extra header as 'Key: Value' (repeatable)")
		cmd.Flags().StringVar(&callFlags.page, "page", "", "Page the call is attributed to in the call log")
		cmd.Flags().DurationVar(&callFlags.timeout, "timeout", 0, "Per-call timeout (default: client.timeout)")
		cmd.Flags().BoolVar(&callFlags.offlineCache, "offline-cache", false, "Ask the offline cache to prefetch the URL")
		cmd.Flags().StringVar(&contentType, "content-type", "", "Content type of the payload")
		rootCmd.AddCommand(cmd)
	}
	requestCmd.Flags().StringVarP(&requestData, "data", "d", "", "Request body, or @file to read it from a file")
}

// callResult is the structured form of a completed call.
type callResult struct {
	Status     int               `json:"status" yaml:"status"`
	Headers    map[string]string `json:"headers" yaml:"headers"`
	Body       any               `json:"body,omitempty" yaml:"body,omitempty"`
	DurationMs int64             `json:"durationMs" yaml:"durationMs"`
}

func runCall(cmd *cobra.Command, call func(context.Context, *turbofetch.Client, []turbofetch.CallOption) (*turbofetch.Response, error)) error {
	opts, err := callOptions(callFlags)
	if err != nil {
		return err
	}

	s, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer s.Close()

	resp, err := call(cmd.Context(), s.client, opts)
	if err != nil {
		return err
	}
	if s.proxy != nil {
		s.proxy.Wait()
	}

	return printResult(cmd.OutOrStdout(), newCallResult(resp), func(w io.Writer) error {
		fmt.Fprintf(w, "%s (%dms)\n", resp.Status, resp.Duration.Milliseconds())
		if len(resp.Body) > 0 {
			fmt.Fprintln(w, resp.Text())
		}
		return nil
	})
}

func callOptions(f callFlagValues) ([]turbofetch.CallOption, error) {
	var opts []turbofetch.CallOption
	for _, h := range f.headers {
		key, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid header %q (want 'Key: Value')", h)
		}
		opts = append(opts, turbofetch.WithHeader(strings.TrimSpace(key), strings.TrimSpace(value)))
	}
	if f.page != "" {
		opts = append(opts, turbofetch.WithPage(f.page))
	}
	if f.timeout > 0 {
		opts = append(opts, turbofetch.WithCallTimeout(f.timeout))
	}
	if f.offlineCache {
		opts = append(opts, turbofetch.WithOfflineCache())
	}
	return opts, nil
}

func requestBody(data, contentType string) (turbofetch.Body, error) {
	if data == "" {
		return nil, nil
	}
	raw := []byte(data)
	if strings.HasPrefix(data, "@") {
		b, err := os.ReadFile(data[1:])
		if err != nil {
			return nil, err
		}
		raw = b
	}
	switch {
	case contentType != "":
		return turbofetch.RawBody(raw, contentType), nil
	case json.Valid(raw):
		return turbofetch.JSONBody(json.RawMessage(raw)), nil
	default:
		return turbofetch.TextBody(string(raw)), nil
	}
}

func newCallResult(resp *turbofetch.Response) callResult {
	headers := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		headers[k] = resp.Header.Get(k)
	}
	var body any
	if len(resp.Body) > 0 {
		if err := json.Unmarshal(resp.Body, &body); err != nil {
			body = resp.Text()
		}
	}
	return callResult{
		Status:     resp.StatusCode,
		Headers:    headers,
		Body:       body,
		DurationMs: resp.Duration.Milliseconds(),
	}
}
