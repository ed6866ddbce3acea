package cert

import (
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"strconv"
	"strings"

	"github.com/mscrnt/pwmbench/pkg/db"
)

// VerifyResult contains the result of certificate verification
type VerifyResult struct {
	Valid       bool
	RunID       int64
	Scenario    string
	Status      string
	Duration    string
	SimTime     string
	Digest      string
	Metrics     []string
	Error       string
	Certificate *x509.Certificate
}

// VerifyCertificateFile checks a run certificate against a CA file and
// reads the run data it carries
func VerifyCertificateFile(certPath, caCertPath string) (*VerifyResult, error) {
	cert, err := LoadCertificate(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	caCert, err := LoadCertificate(caCertPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load CA certificate: %w", err)
	}

	return VerifyCertificate(cert, caCert), nil
}

// VerifyCertificate checks cert against ca and decodes its run extensions
func VerifyCertificate(cert, ca *x509.Certificate) *VerifyResult {
	result := &VerifyResult{Certificate: cert}

	if err := verifyChain(cert, ca); err != nil {
		result.Error = err.Error()
	} else {
		result.Valid = true
	}

	if id, ok := strings.CutPrefix(cert.Subject.CommonName, runCNPrefix); ok {
		result.RunID, _ = strconv.ParseInt(id, 10, 64)
	}

	for _, ext := range cert.Extensions {
		var value string
		if _, err := asn1.Unmarshal(ext.Value, &value); err != nil {
			continue
		}

		switch {
		case ext.Id.Equal(oidStatus):
			result.Status = value
		case ext.Id.Equal(oidScenario):
			result.Scenario = value
		case ext.Id.Equal(oidDuration):
			result.Duration = value + " seconds"
		case ext.Id.Equal(oidSimTime):
			result.SimTime = value
		case ext.Id.Equal(oidDigest):
			result.Digest = value
		case len(ext.Id) == len(oidMetrics)+1 && ext.Id[:len(oidMetrics)].Equal(oidMetrics):
			result.Metrics = append(result.Metrics, value)
		}
	}

	return result
}

// MatchRun compares the certified digest with the stored run
func (r *VerifyResult) MatchRun(export *db.RunExport) error {
	if r.RunID != export.Run.ID {
		return fmt.Errorf("certificate is for run %d, not run %d", r.RunID, export.Run.ID)
	}
	digest, err := Digest(export)
	if err != nil {
		return err
	}
	if digest != r.Digest {
		return fmt.Errorf("run %d changed since it was certified", export.Run.ID)
	}
	return nil
}

// FormatVerifyResult formats verification result for display
func FormatVerifyResult(result *VerifyResult) string {
	var sb strings.Builder

	sb.WriteString("Certificate Verification Result\n")
	sb.WriteString("===============================\n\n")

	if result.Valid {
		sb.WriteString("Status: VALID\n")
	} else {
		sb.WriteString("Status: INVALID\n")
		fmt.Fprintf(&sb, "Error: %s\n", result.Error)
	}

	sb.WriteString("\nCertificate Details:\n")
	fmt.Fprintf(&sb, "  Subject: %s\n", result.Certificate.Subject)
	fmt.Fprintf(&sb, "  Issuer: %s\n", result.Certificate.Issuer)
	fmt.Fprintf(&sb, "  Serial: %s\n", result.Certificate.SerialNumber)
	fmt.Fprintf(&sb, "  Valid From: %s\n", result.Certificate.NotBefore)
	fmt.Fprintf(&sb, "  Valid Until: %s\n", result.Certificate.NotAfter)

	if result.RunID != 0 {
		sb.WriteString("\nRun Information:\n")
		fmt.Fprintf(&sb, "  Run ID: %d\n", result.RunID)
		fmt.Fprintf(&sb, "  Scenario: %s\n", result.Scenario)
		fmt.Fprintf(&sb, "  Status: %s\n", result.Status)
		fmt.Fprintf(&sb, "  Duration: %s\n", result.Duration)
		fmt.Fprintf(&sb, "  Simulated: %s\n", result.SimTime)
		fmt.Fprintf(&sb, "  Digest: %s\n", result.Digest)

		if len(result.Metrics) > 0 {
			sb.WriteString("\nMetrics:\n")
			for _, m := range result.Metrics {
				fmt.Fprintf(&sb, "  %s\n", m)
			}
		}
	}

	return sb.String()
}
