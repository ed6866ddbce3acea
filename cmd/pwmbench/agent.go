package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mscrnt/pwmbench/pkg/agent"
	"github.com/spf13/cobra"
)

func agentCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "agent",
		Short: "Remote bench agent",
		Long:  "Serve the bench over HTTP or talk to a running agent",
	}

	cmd.AddCommand(agentServeCmd())
	cmd.AddCommand(agentConnectCmd())
	cmd.AddCommand(agentRunCmd())
	cmd.AddCommand(agentCertsCmd())

	return cmd
}

func agentServeCmd() *cobra.Command {
	var (
		port     int
		certFile string
		keyFile  string
		caFile   string
		logFile  string
		noStore  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the agent server",
		Long: `Start the agent server. Flags override the agent section of the
configuration file. With --cert and --key it serves HTTPS; adding --ca
requires client certificates signed by that CA.

Endpoints:
  GET  /health     health check
  GET  /sysinfo    host information (?cpu=1, ?full=1)
  GET  /scenarios  registered scenarios
  POST /run        run a scenario: {"scenario": "...", "config": {...}}
  GET  /runs       recorded runs (?limit=, ?scenario=)

Examples:
  # Plain HTTP on the configured port
  pwmbench agent serve

  # Mutual TLS
  pwmbench agent serve --cert server.pem --key server.key --ca ca.pem`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := loadEnv()
			if err != nil {
				return err
			}

			config := e.cfg.Agent
			if cmd.Flags().Changed("port") {
				config.Port = port
			}
			if certFile != "" {
				config.CertFile = certFile
			}
			if keyFile != "" {
				config.KeyFile = keyFile
			}
			if caFile != "" {
				config.CAFile = caFile
			}
			if logFile != "" {
				config.LogFile = logFile
			}

			var store agent.Store
			if !noStore {
				database, err := e.openDB()
				if err != nil {
					return err
				}
				defer func() { _ = database.Close() }()
				store = database
			}

			server, err := agent.NewServer(config, e.cfg.Bench, store, e.logger)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			serverErr := make(chan error, 1)
			go func() { serverErr <- server.Start() }()

			fmt.Fprintf(cmd.OutOrStdout(), "Agent listening on port %d. Press Ctrl+C to stop.\n", config.Port)

			select {
			case err := <-serverErr:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("failed to shut down: %w", err)
			}
			return <-serverErr
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", agent.DefaultPort, "Port to listen on")
	cmd.Flags().StringVar(&certFile, "cert", "", "Server certificate file")
	cmd.Flags().StringVar(&keyFile, "key", "", "Server private key file")
	cmd.Flags().StringVar(&caFile, "ca", "", "CA certificate for client verification")
	cmd.Flags().StringVar(&logFile, "log", "", "Log file path (default: stderr)")
	cmd.Flags().BoolVar(&noStore, "no-store", false, "Do not record runs started through the agent")

	return cmd
}

// clientFlags are the connection flags shared by the client commands
type clientFlags struct {
	config  agent.ClientConfig
	timeout time.Duration
}

func (f *clientFlags) register(cmd *cobra.Command) {
	f.config = agent.DefaultClientConfig()
	cmd.Flags().StringVarP(&f.config.Host, "host", "H", f.config.Host, "Agent host")
	cmd.Flags().IntVarP(&f.config.Port, "port", "p", f.config.Port, "Agent port")
	cmd.Flags().StringVar(&f.config.CertFile, "cert", "", "Client certificate file")
	cmd.Flags().StringVar(&f.config.KeyFile, "key", "", "Client private key file")
	cmd.Flags().StringVar(&f.config.CAFile, "ca", "", "CA certificate for server verification (enables HTTPS)")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 10*time.Minute, "Request timeout")
}

func (f *clientFlags) connect() (*agent.Client, context.Context, context.CancelFunc, error) {
	client, err := agent.NewClient(f.config)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create client: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), f.timeout)
	return client, ctx, cancel, nil
}

func agentConnectCmd() *cobra.Command {
	var flags clientFlags

	cmd := &cobra.Command{
		Use:   "connect [endpoint]",
		Short: "Query a running agent",
		Long: `Fetch an endpoint from a running agent and print the response.

Examples:
  pwmbench agent connect health --host bench01
  pwmbench agent connect sysinfo --host bench01 --ca ca.pem --cert client.pem --key client.key
  pwmbench agent connect "runs?limit=5"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, cancel, err := flags.connect()
			if err != nil {
				return err
			}
			defer cancel()

			if args[0] == "health" {
				if err := client.CheckHealth(ctx); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "OK")
				return nil
			}

			body, err := client.Get(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd, body)
		},
	}

	flags.register(cmd)

	return cmd
}

func agentRunCmd() *cobra.Command {
	var (
		flags  clientFlags
		values map[string]string
		noSave bool
	)

	cmd := &cobra.Command{
		Use:   "run [scenario]",
		Short: "Run a scenario on a remote agent",
		Long: `Run a scenario on a remote agent and print its result.

Examples:
  pwmbench agent run pwm-frequency --host bench01
  pwmbench agent run pwm-duty --host bench01 --config case=half`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, ctx, cancel, err := flags.connect()
			if err != nil {
				return err
			}
			defer cancel()

			resp, err := client.Run(ctx, agent.RunRequest{
				Scenario: args[0],
				Config:   parseValues(values),
				NoSave:   noSave,
			})
			if err != nil {
				var netErr interface{ Timeout() bool }
				if errors.As(err, &netErr) && netErr.Timeout() {
					return fmt.Errorf("agent did not answer within %s: %w", flags.timeout, err)
				}
				return err
			}

			printResult(cmd.OutOrStdout(), args[0], resp.RunID, resp.Result, nil)
			if !resp.Result.Success {
				return fmt.Errorf("scenario %s failed", args[0])
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringToStringVarP(&values, "config", "c", map[string]string{}, "Scenario configuration (key=value)")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "Ask the agent not to record the run")

	return cmd
}

func agentCertsCmd() *cobra.Command {
	var (
		dir      string
		hosts    []string
		validFor time.Duration
	)

	cmd := &cobra.Command{
		Use:   "certs",
		Short: "Generate mutual TLS certificates for the agent",
		Long: `Write a CA, a server certificate and a client certificate for running the
agent with mutual TLS.

Examples:
  pwmbench agent certs --out certs --host bench01 --host 10.0.0.7`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			files, err := agent.GenerateTLSFiles(dir, hosts, validFor)
			if err != nil {
				return fmt.Errorf("failed to generate certificates: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "CA certificate:     %s\n", files.CACert)
			fmt.Fprintf(out, "CA private key:     %s (keep secure)\n", files.CAKey)
			fmt.Fprintf(out, "Server certificate: %s\n", files.ServerCert)
			fmt.Fprintf(out, "Client certificate: %s\n", files.ClientCert)
			fmt.Fprintln(out, "\nUsage:")
			fmt.Fprintf(out, "  Server: pwmbench agent serve --cert %s --key %s --ca %s\n", files.ServerCert, files.ServerKey, files.CACert)
			fmt.Fprintf(out, "  Client: pwmbench agent connect health --cert %s --key %s --ca %s\n", files.ClientCert, files.ClientKey, files.CACert)
			return nil
		},
	}

	cmd.Flags().StringVarP(&dir, "out", "o", "certs", "Output directory")
	cmd.Flags().StringSliceVar(&hosts, "host", nil, "Extra server host names or IP addresses")
	cmd.Flags().DurationVar(&validFor, "valid-for", 365*24*time.Hour, "Certificate lifetime")

	return cmd
}

func printJSON(cmd *cobra.Command, body []byte) error {
	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		// not JSON
		_, err = cmd.OutOrStdout().Write(body)
		return err
	}
	pretty.WriteByte('\n')
	_, err := pretty.WriteTo(cmd.OutOrStdout())
	return err
}
