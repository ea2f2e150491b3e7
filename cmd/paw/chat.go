// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Paw Contributors

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spf13/cobra"

	"github.com/elemarin/paw/internal/agent"
	"github.com/elemarin/paw/internal/server"
	pawerr "github.com/elemarin/paw/pkg/errors"
)

func newChatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat with the agent",
		Long: "Send a message to the running server and stream tool calls as they happen. " +
			"Starts an interactive session if no message is provided.",
		RunE: runChat,
	}

	cmd.Flags().StringP("conversation", "s", "", "continue an existing conversation by ID")
	cmd.Flags().StringP("model", "m", "", "provider/model override")
	cmd.Flags().Bool("approve", false, "allow commands that match an approval pattern")
	cmd.Flags().Int("max-iterations", 0, "override the iteration ceiling for each turn")

	return cmd
}

func runChat(cmd *cobra.Command, args []string) error {
	req := server.ChatRequest{}
	req.ConversationID, _ = cmd.Flags().GetString("conversation")
	req.Model, _ = cmd.Flags().GetString("model")
	req.Approve, _ = cmd.Flags().GetBool("approve")
	req.MaxIterations, _ = cmd.Flags().GetInt("max-iterations")

	client := newAPIClient()
	out := cmd.OutOrStdout()

	if len(args) > 0 {
		req.Message = strings.Join(args, " ")
		_, err := streamChat(cmd.Context(), client, req, out)
		return err
	}

	_, _ = fmt.Fprintln(out, "Interactive chat. Type /exit or press Ctrl-D to quit.")
	in := bufio.NewScanner(cmd.InOrStdin())
	in.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for {
		_, _ = fmt.Fprint(out, "you> ")
		if !in.Scan() {
			_, _ = fmt.Fprintln(out)
			return in.Err()
		}
		line := strings.TrimSpace(in.Text())
		switch line {
		case "":
			continue
		case "/exit", "/quit":
			return nil
		}

		req.Message = line
		res, err := streamChat(cmd.Context(), client, req, out)
		if err != nil {
			// A failed turn does not end the session unless the server is gone.
			if pawerr.HasCode(err, pawerr.CodeCLIGatewayNotRunning) {
				return err
			}
			_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
			continue
		}
		req.ConversationID = res.ConversationID
	}
}

// streamChat runs one turn against the streaming endpoint, printing tool
// calls as they arrive and the final answer at the end.
func streamChat(ctx context.Context, c *apiClient, req server.ChatRequest, out io.Writer) (*server.ChatResult, error) {
	httpReq, err := c.newRequest(ctx, http.MethodPost, "/api/v1/chat/stream", req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.do(streamHTTPClient, httpReq)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var result *server.ChatResult
	err = readSSE(resp.Body, func(event, data string) error {
		switch event {
		case server.EventConversation:
			var v struct {
				ConversationID string `json:"conversation_id"`
			}
			if err := json.Unmarshal([]byte(data), &v); err == nil && req.ConversationID == "" {
				_, _ = fmt.Fprintf(out, "[conversation %s]\n", v.ConversationID)
			}
		case server.EventToolCall:
			var rec agent.ToolCallRecord
			if err := json.Unmarshal([]byte(data), &rec); err != nil {
				return pawerr.Errorf(pawerr.CodeCLIResponseInvalid, "decoding tool call: %w", err)
			}
			printToolCall(out, rec)
		case server.EventResult:
			result = &server.ChatResult{}
			if err := json.Unmarshal([]byte(data), result); err != nil {
				return pawerr.Errorf(pawerr.CodeCLIResponseInvalid, "decoding result: %w", err)
			}
		case server.EventError:
			var v struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			}
			_ = json.Unmarshal([]byte(data), &v)
			return pawerr.New(pawerr.Code(v.Code), v.Message)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, pawerr.New(pawerr.CodeCLIResponseInvalid, "stream ended without a result")
	}

	printResult(out, result)
	return result, nil
}

func printToolCall(out io.Writer, rec agent.ToolCallRecord) {
	args := string(rec.Arguments)
	if len(args) > 120 {
		args = args[:117] + "..."
	}
	if rec.Error != "" {
		_, _ = fmt.Fprintf(out, "  ⚙ %s %s -> error: %s\n", rec.Name, args, rec.Error)
		return
	}
	_, _ = fmt.Fprintf(out, "  ⚙ %s %s (%s)\n", rec.Name, args, rec.Duration)
}

func printResult(out io.Writer, res *server.ChatResult) {
	if res.Text != "" {
		_, _ = fmt.Fprintf(out, "paw> %s\n", res.Text)
	}
	if res.Status != agent.StatusFinal {
		_, _ = fmt.Fprintf(out, "[stopped: %s", res.Status)
		if res.Reason != "" {
			_, _ = fmt.Fprintf(out, ", %s", res.Reason)
		}
		_, _ = fmt.Fprintln(out, "]")
	}
	_, _ = fmt.Fprintf(out, "[%d iterations, %d tokens]\n", res.Iterations, res.Usage.TotalTokens)
}

// readSSE calls fn for every event in r. Multi-line data fields are joined
// with newlines; comments and unknown fields are ignored.
func readSSE(r io.Reader, fn func(event, data string) error) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64<<10), 4<<20)

	var event string
	var data []string
	flush := func() error {
		if len(data) == 0 {
			event = ""
			return nil
		}
		if event == "" {
			event = "message"
		}
		err := fn(event, strings.Join(data, "\n"))
		event, data = "", nil
		return err
	}

	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if err := flush(); err != nil {
				return err
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := sc.Err(); err != nil {
		return pawerr.Errorf(pawerr.CodeCLIResponseInvalid, "reading stream: %w", err)
	}
	return flush()
}
