package kafka

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"

	"software.sslmate.com/src/go-pkcs12"
)

// loadTLSConfig builds a TLS configuration from PKCS#12 keystore and
// truststore files. Both are optional: without a truststore the system
// roots are used, without a keystore no client certificate is presented.
func loadTLSConfig(cfg map[string]string) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if location := cfg["ssl.truststore.location"]; location != "" {
		pool, err := loadTruststore(location, cfg["ssl.truststore.password"])
		if err != nil {
			return nil, fmt.Errorf("failed to load truststore: %w", err)
		}
		tlsConfig.RootCAs = pool
	}

	if location := cfg["ssl.keystore.location"]; location != "" {
		password := cfg["ssl.keystore.password"]
		if password == "" {
			password = cfg["ssl.key.password"]
		}
		cert, err := loadKeystore(location, password)
		if err != nil {
			return nil, fmt.Errorf("failed to load keystore: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func loadTruststore(filename, password string) (*x509.CertPool, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	certs, err := pkcs12.DecodeTrustStore(data, password)
	if err != nil {
		return nil, fmt.Errorf("failed to decode PKCS#12 truststore (check password): %w", err)
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("no certificates found in truststore %s", filename)
	}

	pool := x509.NewCertPool()
	for _, cert := range certs {
		pool.AddCert(cert)
	}
	return pool, nil
}

func loadKeystore(filename, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return tls.Certificate{}, err
	}

	privateKey, cert, chain, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to decode PKCS#12 keystore (check password): %w", err)
	}
	if privateKey == nil || cert == nil {
		return tls.Certificate{}, fmt.Errorf("no private key or certificate found in keystore")
	}

	tlsCert := tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  privateKey,
		Leaf:        cert,
	}
	for _, ca := range chain {
		tlsCert.Certificate = append(tlsCert.Certificate, ca.Raw)
	}
	return tlsCert, nil
}
