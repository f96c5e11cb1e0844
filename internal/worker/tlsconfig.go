package worker

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"modelkeeper/internal/config"
)

/**
 * BuildTLSConfig 把转发来的TLS参数转成tls.Config
 * @param {config.TLSOptions} opts - 转发的TLS参数(零值字段视为未设置)
 * @returns {*tls.Config} 全部未设置时返回nil(明文服务)
 * @returns {error} 证书/密钥/CA加载失败时返回错误
 * @description
 * - version按TLS小版本号(10/11/12/13)映射为最低协议版本
 * - cert_reqs: 1=有证书则校验, 2=必须提供并校验
 * - ciphers为冒号或逗号分隔的套件名
 */
func BuildTLSConfig(opts config.TLSOptions) (*tls.Config, error) {
	if opts.IsZero() {
		return nil, nil
	}

	cfg := &tls.Config{}

	if opts.Keyfile != "" && opts.Certfile != "" {
		cert, err := loadKeyPair(opts.Certfile, opts.Keyfile, opts.KeyfilePassword)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	if opts.Version != 0 {
		v, err := tlsVersion(opts.Version)
		if err != nil {
			return nil, err
		}
		cfg.MinVersion = v
	}

	switch opts.CertReqs {
	case 0:
	case 1:
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
	case 2:
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	default:
		return nil, fmt.Errorf("unsupported ssl-cert-reqs value %d", opts.CertReqs)
	}

	if opts.CACerts != "" {
		data, err := os.ReadFile(opts.CACerts)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA bundle %s: %w", opts.CACerts, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(data) {
			return nil, fmt.Errorf("no certificates found in CA bundle %s", opts.CACerts)
		}
		cfg.ClientCAs = pool
	}

	if opts.Ciphers != "" {
		suites, err := cipherSuites(opts.Ciphers)
		if err != nil {
			return nil, err
		}
		cfg.CipherSuites = suites
	}

	return cfg, nil
}

func tlsVersion(v int) (uint16, error) {
	switch v {
	case 10:
		return tls.VersionTLS10, nil
	case 11:
		return tls.VersionTLS11, nil
	case 12:
		return tls.VersionTLS12, nil
	case 13:
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported ssl-version value %d", v)
	}
}

func cipherSuites(spec string) ([]uint16, error) {
	known := make(map[string]uint16)
	for _, s := range tls.CipherSuites() {
		known[s.Name] = s.ID
	}
	for _, s := range tls.InsecureCipherSuites() {
		known[s.Name] = s.ID
	}

	var ids []uint16
	for _, name := range strings.FieldsFunc(spec, func(r rune) bool { return r == ':' || r == ',' }) {
		id, ok := known[strings.TrimSpace(name)]
		if !ok {
			return nil, fmt.Errorf("unknown cipher suite %q", name)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// loadKeyPair loads a certificate/key pair, decrypting the key with the
// forwarded password when one is given.
func loadKeyPair(certFile, keyFile, password string) (tls.Certificate, error) {
	if password == "" {
		cert, err := tls.LoadX509KeyPair(certFile, keyFile)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("failed to load TLS key pair: %w", err)
		}
		return cert, nil
	}

	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to read certfile %s: %w", certFile, err)
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to read keyfile %s: %w", keyFile, err)
	}

	block, _ := pem.Decode(keyPEM)
	if block == nil {
		return tls.Certificate{}, fmt.Errorf("keyfile %s contains no PEM data", keyFile)
	}
	//lint:ignore SA1019 legacy encrypted PEM keys are what a keyfile password implies
	der, err := x509.DecryptPEMBlock(block, []byte(password))
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to decrypt keyfile %s: %w", keyFile, err)
	}
	keyPEM = pem.EncodeToMemory(&pem.Block{Type: block.Type, Bytes: der})

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to load TLS key pair: %w", err)
	}
	return cert, nil
}
