package kafka

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"software.sslmate.com/src/go-pkcs12"
)

const testStorePassword = "changeit"

type testStores struct {
	keystore   string
	truststore string
	caCert     *x509.Certificate
	clientCert *x509.Certificate
}

// writeTestStores creates a CA, a client certificate signed by it, and the
// PKCS#12 keystore and truststore a broker deployment would hand out.
func writeTestStores(t *testing.T) testStores {
	t.Helper()
	dir := t.TempDir()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	caTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "kafka-router test CA"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, caTemplate, caTemplate, &caKey.PublicKey, caKey)
	require.NoError(t, err)
	caCert, err := x509.ParseCertificate(caDER)
	require.NoError(t, err)

	clientKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	clientTemplate := &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "kafka-router"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	clientDER, err := x509.CreateCertificate(rand.Reader, clientTemplate, caCert, &clientKey.PublicKey, caKey)
	require.NoError(t, err)
	clientCert, err := x509.ParseCertificate(clientDER)
	require.NoError(t, err)

	keystore, err := pkcs12.Modern.Encode(clientKey, clientCert, []*x509.Certificate{caCert}, testStorePassword)
	require.NoError(t, err)
	truststore, err := pkcs12.Modern.EncodeTrustStore([]*x509.Certificate{caCert}, testStorePassword)
	require.NoError(t, err)

	stores := testStores{
		keystore:   filepath.Join(dir, "client.keystore.p12"),
		truststore: filepath.Join(dir, "client.truststore.p12"),
		caCert:     caCert,
		clientCert: clientCert,
	}
	require.NoError(t, os.WriteFile(stores.keystore, keystore, 0o600))
	require.NoError(t, os.WriteFile(stores.truststore, truststore, 0o600))
	return stores
}
