// Package cert issues and checks the self-signed Ed25519 certificates
// simulator servers and clients present to each other. A certificate's
// single DNS name encodes its own public key, so a peer is identified by
// its key alone.
package cert

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base32"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// DNSNamePrefix is prepended to the encoded public key in the DNS name.
const DNSNamePrefix = "w"

// DefaultValidity is used when Config.CertValidityPeriod is zero.
const DefaultValidity = 30 * 24 * time.Hour

var (
	ErrNotEd25519     = errors.New("certificate does not use Ed25519")
	ErrDNSName        = errors.New("certificate DNS name does not encode its public key")
	ErrNotYetValid    = errors.New("certificate is not yet valid")
	ErrExpired        = errors.New("certificate has expired")
	ErrMissingKeyPair = errors.New("key pair required")
)

var base32Encoding = base32.NewEncoding("abcdefghijklmnopqrstuvwxyz234567").WithPadding(base32.NoPadding)

type Config struct {
	PublicKey          ed25519.PublicKey
	PrivateKey         ed25519.PrivateKey
	CertValidityPeriod time.Duration
}

// Generator creates certificates for one key pair.
type Generator struct {
	config Config
	now    func() time.Time
}

func NewGenerator(config Config) *Generator {
	if config.CertValidityPeriod == 0 {
		config.CertValidityPeriod = DefaultValidity
	}
	return &Generator{config: config, now: time.Now}
}

// NewIdentity generates a fresh key pair and its certificate.
func NewIdentity() (*tls.Certificate, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key pair: %w", err)
	}
	return NewGenerator(Config{PublicKey: pub, PrivateKey: priv}).GenerateCertificate()
}

// EncodePubKeyToDNS renders pubKey as DNSNamePrefix + base32(pubKey).
func EncodePubKeyToDNS(pubKey ed25519.PublicKey) string {
	return DNSNamePrefix + base32Encoding.EncodeToString(pubKey)
}

// GenerateCertificate creates a self-signed certificate usable for both
// server and client authentication.
func (g *Generator) GenerateCertificate() (*tls.Certificate, error) {
	if len(g.config.PublicKey) != ed25519.PublicKeySize || len(g.config.PrivateKey) != ed25519.PrivateKeySize {
		return nil, ErrMissingKeyPair
	}
	dnsName := EncodePubKeyToDNS(g.config.PublicKey)

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	now := g.now()
	template := &x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			CommonName: dnsName,
		},
		DNSNames:  []string{dnsName},
		NotBefore: now.Add(-time.Minute),
		NotAfter:  now.Add(g.config.CertValidityPeriod),
		KeyUsage:  x509.KeyUsageDigitalSignature,
		ExtKeyUsage: []x509.ExtKeyUsage{
			x509.ExtKeyUsageServerAuth,
			x509.ExtKeyUsageClientAuth,
		},
		SignatureAlgorithm:    x509.PureEd25519,
		BasicConstraintsValid: true,
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, g.config.PublicKey, g.config.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	leaf, err := x509.ParseCertificate(certDER)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	return &tls.Certificate{
		Certificate: [][]byte{certDER},
		PrivateKey:  g.config.PrivateKey,
		Leaf:        leaf,
	}, nil
}

// Validator checks peer certificates.
type Validator struct {
	now func() time.Time
}

func NewValidator() *Validator {
	return &Validator{now: time.Now}
}

// ValidateCertificate requires an Ed25519 signature and key, exactly one
// DNS name matching the key, and a current validity period.
func (v *Validator) ValidateCertificate(cert *x509.Certificate) error {
	if cert.SignatureAlgorithm != x509.PureEd25519 {
		return ErrNotEd25519
	}
	pubKey, err := v.ExtractPublicKey(cert)
	if err != nil {
		return err
	}
	if len(cert.DNSNames) != 1 {
		return fmt.Errorf("%w: %d names", ErrDNSName, len(cert.DNSNames))
	}
	dnsName := cert.DNSNames[0]
	if !strings.HasPrefix(dnsName, DNSNamePrefix) || dnsName != EncodePubKeyToDNS(pubKey) {
		return fmt.Errorf("%w: %s", ErrDNSName, dnsName)
	}

	now := v.now()
	if now.Before(cert.NotBefore) {
		return ErrNotYetValid
	}
	if now.After(cert.NotAfter) {
		return ErrExpired
	}
	return nil
}

// ExtractPublicKey returns the certificate's Ed25519 public key.
func (v *Validator) ExtractPublicKey(cert *x509.Certificate) (ed25519.PublicKey, error) {
	pubKey, ok := cert.PublicKey.(ed25519.PublicKey)
	if !ok {
		return nil, ErrNotEd25519
	}
	return pubKey, nil
}
