package tlsx

import (
	"context"
	"fmt"
	"net"

	utls "github.com/refraction-networking/utls"
)

// LegacyProvider hand-rolls its ClientHello through uTLS, which exposes
// the protocol-version and extension toggles the platform stack hides.
// Its extension list differs from the native provider's, so alternating
// the two rotates the observable JA3 fingerprint.
type LegacyProvider struct{}

// Handshake implements Impersonator.
func (LegacyProvider) Handshake(ctx context.Context, domain string, conn net.Conn, profile AttackProfile) (net.Conn, error) {
	protos := alpnProtocols(profile)

	cfg := &utls.Config{
		ServerName:         domain,
		NextProtos:         protos,
		InsecureSkipVerify: true,
	}
	if profile.ForceTLS11 {
		cfg.MinVersion = utls.VersionTLS11
		cfg.MaxVersion = utls.VersionTLS11
	}

	uconn := utls.UClient(conn, cfg, utls.HelloCustom)
	if err := uconn.ApplyPreset(legacySpec(profile, protos)); err != nil {
		return nil, fmt.Errorf("legacy hello preset: %w", err)
	}

	if err := uconn.HandshakeContext(ctx); err != nil {
		return nil, fmt.Errorf("legacy handshake with %s: %w", domain, err)
	}
	return uconn, nil
}

func (LegacyProvider) Name() string { return "legacy" }

// legacySpec builds the ClientHello. ForceTLS11 pins both version bounds
// to TLS 1.1 and drops every extension a 1.1-era client would not send;
// otherwise the hello spans TLS 1.0 through 1.3. The ALPN extension
// serializes the protocol list as length-prefixed names on the wire.
func legacySpec(profile AttackProfile, protos []string) *utls.ClientHelloSpec {
	if profile.ForceTLS11 {
		return &utls.ClientHelloSpec{
			TLSVersMin: utls.VersionTLS11,
			TLSVersMax: utls.VersionTLS11,
			CipherSuites: []uint16{
				utls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA,
				utls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
				utls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
				utls.TLS_RSA_WITH_AES_128_CBC_SHA,
				utls.TLS_RSA_WITH_AES_256_CBC_SHA,
			},
			CompressionMethods: []byte{0},
			Extensions: []utls.TLSExtension{
				&utls.SNIExtension{},
				&utls.SupportedCurvesExtension{Curves: []utls.CurveID{utls.X25519, utls.CurveP256, utls.CurveP384}},
				&utls.SupportedPointsExtension{SupportedPoints: []byte{0}},
				&utls.ALPNExtension{AlpnProtocols: protos},
				&utls.RenegotiationInfoExtension{Renegotiation: utls.RenegotiateOnceAsClient},
			},
		}
	}

	return &utls.ClientHelloSpec{
		TLSVersMin: utls.VersionTLS10,
		TLSVersMax: utls.VersionTLS13,
		CipherSuites: []uint16{
			utls.TLS_AES_128_GCM_SHA256,
			utls.TLS_AES_256_GCM_SHA384,
			utls.TLS_CHACHA20_POLY1305_SHA256,
			utls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			utls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			utls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			utls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			utls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
			utls.TLS_RSA_WITH_AES_128_CBC_SHA,
		},
		CompressionMethods: []byte{0},
		Extensions: []utls.TLSExtension{
			&utls.SNIExtension{},
			&utls.SupportedCurvesExtension{Curves: []utls.CurveID{utls.X25519, utls.CurveP256, utls.CurveP384}},
			&utls.SupportedPointsExtension{SupportedPoints: []byte{0}},
			&utls.SessionTicketExtension{},
			&utls.ALPNExtension{AlpnProtocols: protos},
			&utls.SignatureAlgorithmsExtension{SupportedSignatureAlgorithms: []utls.SignatureScheme{
				utls.ECDSAWithP256AndSHA256,
				utls.PSSWithSHA256,
				utls.PKCS1WithSHA256,
				utls.ECDSAWithP384AndSHA384,
				utls.PSSWithSHA384,
				utls.PKCS1WithSHA384,
				utls.PKCS1WithSHA1,
			}},
			&utls.KeyShareExtension{KeyShares: []utls.KeyShare{{Group: utls.X25519}}},
			&utls.PSKKeyExchangeModesExtension{Modes: []uint8{utls.PskModeDHE}},
			&utls.SupportedVersionsExtension{Versions: []uint16{
				utls.VersionTLS13,
				utls.VersionTLS12,
				utls.VersionTLS11,
				utls.VersionTLS10,
			}},
			&utls.RenegotiationInfoExtension{Renegotiation: utls.RenegotiateOnceAsClient},
		},
	}
}
