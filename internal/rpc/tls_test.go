package rpc

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

// selfSignedCert writes a self-signed certificate for localhost that is valid
// for both server and client authentication.
func selfSignedCert(t *testing.T, commonName string) TLSFiles {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	template := x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: commonName},
		DNSNames:              []string{"localhost"},
		NotBefore:             time.Now().Add(-time.Minute),
		NotAfter:              time.Now().Add(time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
	}
	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)

	dir := t.TempDir()
	f := TLSFiles{CertFile: filepath.Join(dir, "tls.crt"), KeyFile: filepath.Join(dir, "tls.key")}
	require.NoError(t, os.WriteFile(f.CertFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(f.KeyFile, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER}), 0o600))
	return f
}

func TestServerTLSConfig(t *testing.T) {
	server := selfSignedCert(t, "ledgerd")

	cfg, err := ServerTLSConfig(server)
	require.NoError(t, err)
	assert.Nil(t, cfg.ClientCAs)

	client := selfSignedCert(t, "glctl")
	server.CAFile = client.CertFile
	cfg, err = ServerTLSConfig(server)
	require.NoError(t, err)
	assert.NotNil(t, cfg.ClientCAs)

	_, err = ServerTLSConfig(TLSFiles{CertFile: "/nonexistent.crt", KeyFile: "/nonexistent.key"})
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "ca.crt")
	require.NoError(t, os.WriteFile(bad, []byte("not a certificate"), 0o600))
	server.CAFile = bad
	_, err = ServerTLSConfig(server)
	assert.ErrorContains(t, err, "parse CA")
}

func TestMutualTLS(t *testing.T) {
	server := selfSignedCert(t, "ledgerd")
	client := selfSignedCert(t, "glctl")
	server.CAFile = client.CertFile

	creds, err := ServerCredentials(server)
	require.NoError(t, err)
	lis := serve(t, grpc.Creds(creds), grpc.UnaryInterceptor(LoggingInterceptor(testLogger())))

	clientTLS, err := ClientTLSConfig(TLSFiles{CertFile: client.CertFile, KeyFile: client.KeyFile, CAFile: server.CertFile}, "localhost")
	require.NoError(t, err)
	c := seeded(t, connect(t, lis, credentials.NewTLS(clientTLS)), "acme")
	assert.NoError(t, c.Call(context.Background(), "ListAccounts", nil, nil))

	t.Run("client without certificate", func(t *testing.T) {
		anonTLS, err := ClientTLSConfig(TLSFiles{CAFile: server.CertFile}, "localhost")
		require.NoError(t, err)
		conn := connect(t, lis, credentials.NewTLS(anonTLS))
		err = NewClient(conn, "acme", "tester").Call(context.Background(), "ListAccounts", nil, nil)
		assert.Error(t, err)
	})
}
