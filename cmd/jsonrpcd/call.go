package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/spf13/cobra"

	"github.com/MegaGrindStone/go-jsonrpc"
)

type callOptions struct {
	network string
	address string
	url     string
	notify  bool
	timeout time.Duration
}

func (a *app) callCommand() *cobra.Command {
	var opts callOptions
	cmd := &cobra.Command{
		Use:   "call METHOD [PARAMS]",
		Short: "Call a capability and print its result",
		Long: "Call a capability and print its result. PARAMS is a JSON object or array.\n\n" +
			"Without --address or --url the call is dispatched in-process against the configured " +
			"capability sets.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var params json.RawMessage
			if len(args) == 2 {
				if !json.Valid([]byte(args[1])) {
					return fmt.Errorf("params %q are not valid JSON", args[1])
				}
				params = json.RawMessage(args[1])
			}

			ctx := cmd.Context()
			if opts.timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, opts.timeout)
				defer cancel()
			}
			return a.call(ctx, cmd, opts, args[0], params)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.network, "network", "tcp", "Network of --address: tcp or unix")
	flags.StringVar(&opts.address, "address", "", "Address of a running jsonrpcd")
	flags.StringVar(&opts.url, "url", "", "Events URL of a running jsonrpcd serving sse")
	flags.BoolVar(&opts.notify, "notify", false, "Send a notification and do not wait for a result")
	flags.DurationVar(&opts.timeout, "timeout", 30*time.Second, "Bound on the whole call, 0 for none")
	cmd.MarkFlagsMutuallyExclusive("address", "url")
	return cmd
}

func (a *app) call(ctx context.Context, cmd *cobra.Command, opts callOptions, method string, params json.RawMessage) error {
	cfg, logger, err := a.load()
	if err != nil {
		return err
	}

	transport, err := dial(ctx, opts, logger)
	if err != nil {
		return err
	}
	if transport == nil {
		registry, err := buildRegistry(cfg, logger)
		if err != nil {
			return err
		}
		transport = newLocalTransport(jsonrpc.NewDispatcher(registry, nil,
			jsonrpc.WithDispatcherLogger(logger),
			jsonrpc.WithInvocationTimeout(cfg.Server.InvocationTimeout)))
	}

	clientOpts := []jsonrpc.ClientOption{jsonrpc.WithClientLogger(logger)}
	if opts.timeout > 0 {
		clientOpts = append(clientOpts,
			jsonrpc.WithClientWriteTimeout(opts.timeout),
			jsonrpc.WithClientReadTimeout(opts.timeout))
	}
	client := jsonrpc.NewClient(transport, clientOpts...)
	defer client.Close()

	if opts.notify {
		return client.Notify(ctx, method, params)
	}

	var result json.RawMessage
	if err := client.Call(ctx, method, params, &result); err != nil {
		var rpcErr *jsonrpc.ErrorObject
		if errors.As(err, &rpcErr) {
			return fmt.Errorf("%s failed with code %d: %w", method, rpcErr.Code, err)
		}
		return err
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

// dial connects to a running daemon when an address or URL is given. It returns a nil Transport
// when the call should be served in-process.
func dial(ctx context.Context, opts callOptions, logger *slog.Logger) (jsonrpc.Transport, error) {
	switch {
	case opts.url != "":
		c, err := jsonrpc.DialSSE(ctx, opts.url, jsonrpc.WithSSEClientLogger(logger))
		if err != nil {
			return nil, err
		}
		return c, nil
	case opts.address != "":
		var d net.Dialer
		conn, err := d.DialContext(ctx, opts.network, opts.address)
		if err != nil {
			return nil, fmt.Errorf("failed to dial %s %s: %w", opts.network, opts.address, err)
		}
		return jsonrpc.NewStreamTransport(conn, conn,
			jsonrpc.WithStreamLogger(logger),
			jsonrpc.WithStreamCloser(conn)), nil
	default:
		return nil, nil
	}
}
