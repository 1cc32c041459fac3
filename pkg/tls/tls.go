// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"os"

	"github.com/absmach/kafka-gateway/config"
)

var (
	errLoadCerts = errors.New("failed to load client certificate")
	errLoadCA    = errors.New("failed to load CA")
	errAppendCA  = errors.New("failed to append root ca tls.Config")
	errCertPair  = errors.New("cert_file and key_file must be set together")
)

// LoadClientConfig returns a TLS configuration for dialing brokers.
// Without a CA file the system roots are used.
func LoadClientConfig(c config.TLSConfig) (*tls.Config, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         c.ServerName,
		InsecureSkipVerify: c.InsecureSkipVerify,
	}

	if (c.CertFile == "") != (c.KeyFile == "") {
		return nil, errCertPair
	}
	if c.CertFile != "" {
		certificate, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, errors.Join(errLoadCerts, err)
		}
		cfg.Certificates = []tls.Certificate{certificate}
	}

	rootCA, err := loadCertFile(c.CAFile)
	if err != nil {
		return nil, errors.Join(errLoadCA, err)
	}
	if len(rootCA) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(rootCA) {
			return nil, errAppendCA
		}
		cfg.RootCAs = pool
	}

	return cfg, nil
}

func loadCertFile(certFile string) ([]byte, error) {
	if certFile != "" {
		return os.ReadFile(certFile)
	}
	return []byte{}, nil
}
