package transport

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// CloudIoT connects to a managed IoT broker that authenticates clients with
// X.509 certificates.
type CloudIoT struct {
	*pahoConn
}

// Credentials names the PEM files used for mutual TLS.
type Credentials struct {
	CertFile   string
	KeyFile    string
	RootCAFile string
}

// NewCloudIoT loads the credentials and creates the adapter. No network I/O
// happens until Connect.
func NewCloudIoT(o Options, creds Credentials) (*CloudIoT, error) {
	if o.ClientID == "" {
		return nil, errors.New("cloud broker requires a client id")
	}
	tlsConfig, err := mutualTLSConfig(creds, o.Server)
	if err != nil {
		return nil, err
	}
	if o.Port == 0 {
		o.Port = 8883
	}
	if o.Port == 443 {
		tlsConfig.NextProtos = []string{"x-amzn-mqtt-ca"}
	}
	o.TLSConfig = tlsConfig
	return &CloudIoT{pahoConn: newPahoConn(o, "mqtt_cloud")}, nil
}

func mutualTLSConfig(creds Credentials, serverName string) (*tls.Config, error) {
	if creds.CertFile == "" || creds.KeyFile == "" {
		return nil, errors.New("cloud broker requires a certificate and a private key")
	}
	cert, err := tls.LoadX509KeyPair(creds.CertFile, creds.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		ServerName:   serverName,
		MinVersion:   tls.VersionTLS12,
	}
	if creds.RootCAFile == "" {
		return cfg, nil
	}

	pem, err := os.ReadFile(creds.RootCAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read root CA: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", creds.RootCAFile)
	}
	cfg.RootCAs = pool
	return cfg, nil
}
