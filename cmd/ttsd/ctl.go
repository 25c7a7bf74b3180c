package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"ttsd/pkg/types"
)

// ctlClient talks to a running server.
type ctlClient struct {
	base string
	http *http.Client
}

func (c ctlClient) do(ctx context.Context, method, path string, body any) ([]byte, error) {
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rdr = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, strings.TrimRight(c.base, "/")+path, rdr)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		return out, fmt.Errorf("%s %s: %s: %s", method, path, resp.Status, strings.TrimSpace(string(out)))
	}
	return out, nil
}

// printJSON re-indents a JSON body for the terminal.
func printJSON(w io.Writer, b []byte) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, b, "", "  "); err != nil {
		_, err = w.Write(b)
		return err
	}
	buf.WriteByte('\n')
	_, err := buf.WriteTo(w)
	return err
}

func newCtlCmd() *cobra.Command {
	var (
		server  string
		timeout time.Duration
	)
	client := func() ctlClient {
		return ctlClient{base: server, http: &http.Client{Timeout: timeout}}
	}
	get := func(path string) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			b, err := client().do(cmd.Context(), http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), b)
		}
	}

	ctl := &cobra.Command{
		Use:   "ctl",
		Short: "Inspect and control a running server",
	}
	ctl.PersistentFlags().StringVar(&server, "server", envStr("SERVER", "http://localhost:8880"), "Server base URL")
	ctl.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Request timeout")

	pools := &cobra.Command{Use: "pools", Short: "Show session pools", Example: "  ttsd ctl pools", RunE: get("/debug/session_pools")}
	status := &cobra.Command{Use: "status", Short: "Show manager status", Example: "  ttsd ctl status", RunE: get("/status")}
	reinit := &cobra.Command{
		Use:     "reinitialize",
		Aliases: []string{"reinit"},
		Short:   "Unload and warm the model again",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := client().do(cmd.Context(), http.MethodPost, "/debug/reinitialize", nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), b)
		},
	}
	voice := &cobra.Command{
		Use:     "voice <id>",
		Short:   "Set the default voice",
		Example: "  ttsd ctl voice af_bella",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := client().do(cmd.Context(), http.MethodPost, "/debug/voice", types.VoiceRequest{Voice: args[0]})
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), b)
		},
	}
	speech := &cobra.Command{
		Use:     "speech-config",
		Short:   "Show or change the speech defaults",
		Example: "  ttsd ctl speech-config --speed 1.2 --format wav",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client()
			f := cmd.Flags()
			if f.Changed("voice") || f.Changed("speed") {
				in := types.SpeechBaseConfig{}
				in.Voice, _ = f.GetString("voice")
				if f.Changed("speed") {
					v, _ := f.GetFloat64("speed")
					in.Speed = &v
				}
				if _, err := c.do(cmd.Context(), http.MethodPost, "/dev/speech/config/base", in); err != nil {
					return err
				}
			}
			if f.Changed("stream") || f.Changed("format") {
				in := types.SpeechAdvancedConfig{}
				in.ResponseFormat, _ = f.GetString("format")
				if f.Changed("stream") {
					v, _ := f.GetBool("stream")
					in.Stream = &v
				}
				if _, err := c.do(cmd.Context(), http.MethodPost, "/dev/speech/config/advanced", in); err != nil {
					return err
				}
			}
			b, err := c.do(cmd.Context(), http.MethodGet, "/dev/speech/config", nil)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), b)
		},
	}
	speech.Flags().String("voice", "", "Default voice id")
	speech.Flags().Float64("speed", 1, "Default speech speed")
	speech.Flags().Bool("stream", true, "Stream audio as it is produced")
	speech.Flags().String("format", "", "Default response format (pcm or wav)")
	ctl.AddCommand(pools, status, reinit, voice, speech)
	return ctl
}
