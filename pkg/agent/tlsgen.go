package agent

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// TLSFiles are the PEM files of a generated mutual TLS setup
type TLSFiles struct {
	CACert     string
	CAKey      string
	ServerCert string
	ServerKey  string
	ClientCert string
	ClientKey  string
}

// ServerConfig returns an agent configuration serving with these files
func (f TLSFiles) ServerConfig(port int) Config {
	return Config{Port: port, CertFile: f.ServerCert, KeyFile: f.ServerKey, CAFile: f.CACert}
}

// ClientConfig returns a client configuration presenting these files
func (f TLSFiles) ClientConfig(host string, port int) ClientConfig {
	return ClientConfig{Host: host, Port: port, CertFile: f.ClientCert, KeyFile: f.ClientKey, CAFile: f.CACert}
}

type signer struct {
	cert *x509.Certificate
	key  *ecdsa.PrivateKey
}

// GenerateTLSFiles writes a CA with one server and one client certificate
// into dir. The server certificate covers localhost, 127.0.0.1 and hosts.
func GenerateTLSFiles(dir string, hosts []string, validFor time.Duration) (TLSFiles, error) {
	files := TLSFiles{
		CACert:     filepath.Join(dir, "ca.pem"),
		CAKey:      filepath.Join(dir, "ca-key.pem"),
		ServerCert: filepath.Join(dir, "server.pem"),
		ServerKey:  filepath.Join(dir, "server-key.pem"),
		ClientCert: filepath.Join(dir, "client.pem"),
		ClientKey:  filepath.Join(dir, "client-key.pem"),
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return files, fmt.Errorf("failed to create %s: %w", dir, err)
	}

	now := time.Now()
	notBefore := now.Add(-time.Minute)

	ca, err := sign(nil, &x509.Certificate{
		Subject:               pkix.Name{Organization: []string{"pwmbench"}, CommonName: "pwmbench agent CA"},
		NotBefore:             notBefore,
		NotAfter:              now.Add(validFor),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
		MaxPathLenZero:        true,
	}, files.CACert, files.CAKey)
	if err != nil {
		return files, fmt.Errorf("CA: %w", err)
	}

	server := &x509.Certificate{
		Subject:     pkix.Name{Organization: []string{"pwmbench"}, CommonName: "pwmbench-agent"},
		NotBefore:   notBefore,
		NotAfter:    now.Add(validFor),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IPAddresses: []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		DNSNames:    []string{"localhost"},
	}
	for _, h := range hosts {
		if ip := net.ParseIP(h); ip != nil {
			server.IPAddresses = append(server.IPAddresses, ip)
		} else if h != "" {
			server.DNSNames = append(server.DNSNames, h)
		}
	}
	if _, err := sign(ca, server, files.ServerCert, files.ServerKey); err != nil {
		return files, fmt.Errorf("server: %w", err)
	}

	if _, err := sign(ca, &x509.Certificate{
		Subject:     pkix.Name{Organization: []string{"pwmbench"}, CommonName: "pwmbench-client"},
		NotBefore:   notBefore,
		NotAfter:    now.Add(validFor),
		KeyUsage:    x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}, files.ClientCert, files.ClientKey); err != nil {
		return files, fmt.Errorf("client: %w", err)
	}

	return files, nil
}

// sign creates template signed by parent, self-signed when parent is nil,
// and writes the certificate and key
func sign(parent *signer, template *x509.Certificate, certPath, keyPath string) (*signer, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial: %w", err)
	}
	template.SerialNumber = serial

	issuer, issuerKey := template, key
	if parent != nil {
		issuer, issuerKey = parent.cert, parent.key
	}
	der, err := x509.CreateCertificate(rand.Reader, template, issuer, &key.PublicKey, issuerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, err
	}
	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644); err != nil { // #nosec G306 -- certificates are public
		return nil, err
	}
	if err := os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		return nil, err
	}
	return &signer{cert: cert, key: key}, nil
}
