// Package cert issues signed certificates that attest to the outcome of a
// recorded bench run.
package cert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/hex"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"strconv"
	"time"

	"github.com/mscrnt/pwmbench/pkg/db"
)

// Extension OIDs carried by run certificates
var (
	oidStatus   = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 99999, 1, 1}
	oidScenario = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 99999, 1, 2}
	oidDuration = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 99999, 1, 3}
	oidSimTime  = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 99999, 1, 4}
	oidDigest   = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 99999, 1, 5}
	oidMetrics  = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 99999, 2}
)

// MaxMetrics is the number of metrics copied into a certificate
const MaxMetrics = 16

const runCNPrefix = "pwmbench run #"

// CertificateIssuer signs run certificates with its CA
type CertificateIssuer struct {
	caCert *x509.Certificate
	caKey  *ecdsa.PrivateKey
}

// NewCertificateIssuer creates a new certificate issuer with a self-signed CA
func NewCertificateIssuer() (*CertificateIssuer, error) {
	caKey, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate CA key: %w", err)
	}

	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	caTemplate := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"pwmbench"},
			CommonName:   "pwmbench run CA",
		},
		NotBefore:             now.Add(-time.Hour),
		NotAfter:              now.AddDate(10, 0, 0),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	caCertDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create CA certificate: %w", err)
	}

	caCert, err := x509.ParseCertificate(caCertDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA certificate: %w", err)
	}

	return &CertificateIssuer{caCert: caCert, caKey: caKey}, nil
}

// CA returns the issuing certificate
func (i *CertificateIssuer) CA() *x509.Certificate {
	return i.caCert
}

// SaveCA writes the CA certificate and key as PEM
func (i *CertificateIssuer) SaveCA(certPath, keyPath string) error {
	if err := writePEM(certPath, "CERTIFICATE", i.caCert.Raw, 0o644); err != nil {
		return fmt.Errorf("failed to write CA cert: %w", err)
	}
	if err := writeKey(keyPath, i.caKey); err != nil {
		return fmt.Errorf("failed to write CA key: %w", err)
	}
	return nil
}

// LoadCA loads CA certificate and key from files
func LoadCA(certPath, keyPath string) (*CertificateIssuer, error) {
	caCert, err := LoadCertificate(certPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load CA cert: %w", err)
	}

	block, err := readPEM(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA key: %w", err)
	}
	caKey, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse CA key: %w", err)
	}

	return &CertificateIssuer{caCert: caCert, caKey: caKey}, nil
}

// LoadCertificate reads one PEM certificate
func LoadCertificate(path string) (*x509.Certificate, error) {
	block, err := readPEM(path)
	if err != nil {
		return nil, err
	}
	return x509.ParseCertificate(block.Bytes)
}

// IssueCertificate signs a certificate for a finished run. The certificate
// carries the run outcome, up to MaxMetrics metrics and a digest of the
// stored run.
func (i *CertificateIssuer) IssueCertificate(export *db.RunExport) (*Certificate, error) {
	run := export.Run
	if run.EndTime == nil {
		return nil, fmt.Errorf("run %d has not finished", run.ID)
	}

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	serial, err := randomSerial()
	if err != nil {
		return nil, err
	}

	extensions, err := buildExtensions(export)
	if err != nil {
		return nil, err
	}

	template := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			Organization: []string{"pwmbench"},
			CommonName:   fmt.Sprintf("%s%d", runCNPrefix, run.ID),
		},
		NotBefore:       run.StartTime.Add(-time.Minute),
		NotAfter:        run.StartTime.AddDate(1, 0, 0),
		KeyUsage:        x509.KeyUsageDigitalSignature,
		ExtKeyUsage:     []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning},
		ExtraExtensions: extensions,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, i.caCert, &key.PublicKey, i.caKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}

	cert, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return &Certificate{
		Certificate: cert,
		PrivateKey:  key,
		RunID:       run.ID,
		IssuedAt:    time.Now(),
	}, nil
}

func buildExtensions(export *db.RunExport) ([]pkix.Extension, error) {
	run := export.Run

	status := "FAILED"
	if run.Success {
		status = "PASSED"
	}
	digest, err := Digest(export)
	if err != nil {
		return nil, err
	}

	values := []struct {
		id    asn1.ObjectIdentifier
		value string
	}{
		{oidStatus, status},
		{oidScenario, run.Scenario},
		{oidDuration, fmt.Sprintf("%.3f", run.Duration().Seconds())},
		{oidSimTime, run.SimTime().String()},
		{oidDigest, digest},
	}
	for n, r := range export.Results {
		if n >= MaxMetrics {
			break
		}
		id := append(append(asn1.ObjectIdentifier{}, oidMetrics...), n+1)
		values = append(values, struct {
			id    asn1.ObjectIdentifier
			value string
		}{id, r.Metric + "=" + strconv.FormatFloat(r.Value, 'g', -1, 64) + " " + r.Unit})
	}

	extensions := make([]pkix.Extension, 0, len(values))
	for _, v := range values {
		encoded, err := asn1.MarshalWithParams(v.value, "utf8")
		if err != nil {
			return nil, fmt.Errorf("failed to encode extension %s: %w", v.id, err)
		}
		extensions = append(extensions, pkix.Extension{Id: v.id, Value: encoded})
	}
	return extensions, nil
}

// Digest is the hex SHA-256 of the run outcome, its metrics and its
// channels. Timestamps of row creation are left out so the digest only
// changes when the measurements do.
func Digest(export *db.RunExport) (string, error) {
	type metric struct {
		Metric string  `json:"metric"`
		Value  float64 `json:"value"`
		Unit   string  `json:"unit"`
	}
	type channel struct {
		Case    string  `json:"case"`
		Bus     string  `json:"bus"`
		Bit     int     `json:"bit"`
		Kind    string  `json:"kind"`
		Value   float64 `json:"value"`
		Stalled bool    `json:"stalled"`
	}
	canonical := struct {
		ID        int64     `json:"id"`
		Scenario  string    `json:"scenario"`
		Success   bool      `json:"success"`
		Error     string    `json:"error"`
		SimTicks  int64     `json:"sim_ticks"`
		Metrics   []metric  `json:"metrics"`
		Channels  []channel `json:"channels"`
		StartUnix int64     `json:"start"`
	}{
		ID:        export.Run.ID,
		Scenario:  export.Run.Scenario,
		Success:   export.Run.Success,
		Error:     export.Run.Error,
		SimTicks:  export.Run.SimTicks,
		StartUnix: export.Run.StartTime.Unix(),
	}
	for _, r := range export.Results {
		canonical.Metrics = append(canonical.Metrics, metric{r.Metric, r.Value, r.Unit})
	}
	for _, c := range export.Channels {
		canonical.Channels = append(canonical.Channels, channel{c.Case, c.Bus, c.Bit, c.Kind, c.Value, c.Stalled})
	}

	data, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("failed to encode run: %w", err)
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Certificate represents an issued certificate
type Certificate struct {
	*x509.Certificate
	PrivateKey *ecdsa.PrivateKey
	RunID      int64
	IssuedAt   time.Time
}

// Save writes the certificate, and the key when keyPath is set
func (c *Certificate) Save(certPath, keyPath string) error {
	if err := writePEM(certPath, "CERTIFICATE", c.Raw, 0o644); err != nil {
		return fmt.Errorf("failed to write cert: %w", err)
	}
	if keyPath == "" {
		return nil
	}
	if err := writeKey(keyPath, c.PrivateKey); err != nil {
		return fmt.Errorf("failed to write key: %w", err)
	}
	return nil
}

// SavePEM returns the certificate as PEM-encoded string
func (c *Certificate) SavePEM() string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: c.Raw}))
}

// Verify verifies a certificate against the CA
func (i *CertificateIssuer) Verify(cert *x509.Certificate) error {
	return verifyChain(cert, i.caCert)
}

func verifyChain(cert, ca *x509.Certificate) error {
	roots := x509.NewCertPool()
	roots.AddCert(ca)

	opts := x509.VerifyOptions{
		Roots:     roots,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning},
	}
	if _, err := cert.Verify(opts); err != nil {
		return fmt.Errorf("certificate verification failed: %w", err)
	}
	return nil
}

func randomSerial() (*big.Int, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial: %w", err)
	}
	return serial, nil
}

func writeKey(path string, key *ecdsa.PrivateKey) error {
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return err
	}
	return writePEM(path, "EC PRIVATE KEY", der, 0o600)
}

func writePEM(path, blockType string, der []byte, perm os.FileMode) error {
	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, perm); err != nil {
		return err
	}
	// WriteFile keeps the mode of an existing file
	return os.Chmod(path, perm)
}

func readPEM(path string) (*pem.Block, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user supplied certificate path
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("no PEM block in %s", path)
	}
	return block, nil
}
