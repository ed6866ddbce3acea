package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/mscrnt/pwmbench/pkg/cert"
	"github.com/spf13/cobra"
)

func certCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Run certificate management",
		Long:  "Issue and verify signed certificates for recorded runs",
	}

	cmd.AddCommand(certInitCmd())
	cmd.AddCommand(certIssueCmd())
	cmd.AddCommand(certVerifyCmd())

	return cmd
}

// defaultCAPath returns ~/.pwmbench/ca
func defaultCAPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".pwmbench", "ca"), nil
}

func caFiles(caPath string) (string, string, error) {
	if caPath == "" {
		p, err := defaultCAPath()
		if err != nil {
			return "", "", err
		}
		caPath = p
	}
	return filepath.Join(caPath, "ca.crt"), filepath.Join(caPath, "ca.key"), nil
}

func certInitCmd() *cobra.Command {
	var (
		caPath string
		force  bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize the certificate authority",
		Long: `Create a self-signed CA certificate and key used to sign run certificates.

Examples:
  pwmbench cert init
  pwmbench cert init --ca-path /path/to/ca --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			certPath, keyPath, err := caFiles(caPath)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(certPath), 0o700); err != nil {
				return fmt.Errorf("failed to create CA directory: %w", err)
			}

			if !force {
				if _, err := os.Stat(certPath); err == nil {
					return fmt.Errorf("CA certificate already exists at %s (use --force to overwrite)", certPath)
				}
			}

			issuer, err := cert.NewCertificateIssuer()
			if err != nil {
				return fmt.Errorf("failed to create CA: %w", err)
			}
			if err := issuer.SaveCA(certPath, keyPath); err != nil {
				return fmt.Errorf("failed to save CA: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Certificate Authority initialized")
			fmt.Fprintf(out, "CA Certificate: %s\n", certPath)
			fmt.Fprintf(out, "CA Private Key: %s\n", keyPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&caPath, "ca-path", "", "CA directory (default: ~/.pwmbench/ca)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing CA")

	return cmd
}

func certIssueCmd() *cobra.Command {
	var (
		runID        int64
		latest       bool
		scenarioName string
		output       string
		keyOutput    string
		caPath       string
	)

	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Issue a certificate for a run",
		Long: `Issue a certificate attesting to a recorded run. The certificate carries
the run outcome, the scenario, its wall and simulated durations, the first
metrics and a digest of the stored run.

Examples:
  pwmbench cert issue --latest
  pwmbench cert issue --latest --scenario pwm-duty
  pwmbench cert issue --run 42 --output run42.pem --key run42.key`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			certPath, keyPath, err := caFiles(caPath)
			if err != nil {
				return err
			}
			issuer, err := cert.LoadCA(certPath, keyPath)
			if err != nil {
				return fmt.Errorf("failed to load CA (run 'pwmbench cert init' first): %w", err)
			}

			e, err := loadEnv()
			if err != nil {
				return err
			}
			database, err := e.openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			id, err := resolveRun(database, runID, latest, scenarioName)
			if err != nil {
				return err
			}
			export, err := database.LoadExport(id)
			if err != nil {
				return err
			}

			certificate, err := issuer.IssueCertificate(export)
			if err != nil {
				return fmt.Errorf("failed to issue certificate: %w", err)
			}

			if output == "" {
				output = fmt.Sprintf("pwmbench_run_%d_%s.pem", id, time.Now().Format("20060102_150405"))
			}
			if err := certificate.Save(output, keyOutput); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Certificate issued for run %d\n", id)
			fmt.Fprintf(out, "Certificate: %s\n", output)
			if keyOutput != "" {
				fmt.Fprintf(out, "Private Key: %s\n", keyOutput)
			}
			fmt.Fprintf(out, "Serial: %s\n", certificate.SerialNumber)
			return nil
		},
	}

	cmd.Flags().Int64Var(&runID, "run", 0, "Run ID to certify")
	cmd.Flags().BoolVar(&latest, "latest", false, "Certify the latest run")
	cmd.Flags().StringVar(&scenarioName, "scenario", "", "Restrict --latest to this scenario")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Certificate output file")
	cmd.Flags().StringVar(&keyOutput, "key", "", "Private key output file (not written when empty)")
	cmd.Flags().StringVar(&caPath, "ca-path", "", "CA directory (default: ~/.pwmbench/ca)")

	return cmd
}

func certVerifyCmd() *cobra.Command {
	var (
		caCertPath string
		checkDB    bool
	)

	cmd := &cobra.Command{
		Use:   "verify [certificate]",
		Short: "Verify a run certificate",
		Long: `Check a run certificate against the CA and print the run data it carries.
With --check-db the certified digest is compared with the stored run.

Examples:
  pwmbench cert verify run42.pem
  pwmbench cert verify run42.pem --ca /path/to/ca.crt --check-db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if caCertPath == "" {
				certPath, _, err := caFiles("")
				if err != nil {
					return err
				}
				caCertPath = certPath
			}

			result, err := cert.VerifyCertificateFile(args[0], caCertPath)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), cert.FormatVerifyResult(result))

			if !result.Valid {
				return fmt.Errorf("certificate verification failed")
			}
			if !checkDB {
				return nil
			}

			e, err := loadEnv()
			if err != nil {
				return err
			}
			database, err := e.openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			export, err := database.LoadExport(result.RunID)
			if err != nil {
				return err
			}
			if err := result.MatchRun(export); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nStored run %d matches the certificate\n", result.RunID)
			return nil
		},
	}

	cmd.Flags().StringVar(&caCertPath, "ca", "", "CA certificate (default: ~/.pwmbench/ca/ca.crt)")
	cmd.Flags().BoolVar(&checkDB, "check-db", false, "Compare the certificate with the stored run")

	return cmd
}
