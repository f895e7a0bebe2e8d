package xgate

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/url"
	"strings"
	"syscall"
)

// classifierRules is checked in order; some substrings are specializations
// of later ones, so the first match wins.
var classifierRules = []struct {
	kind     ErrorKind
	patterns []string
}{
	{ErrKindConnectionTimeout, []string{"connection timeout", "connection timed out", "request timed out", "timed out"}},
	{ErrKindReadTimeout, []string{"read timeout"}},
	{ErrKindReadTimeout, []string{"timeout"}},
	{ErrKindConnectionRefused, []string{"connection refused", "connection denied"}},
	{ErrKindDNSResolution, []string{"could not resolve host", "name resolution", "dns resolution", "dns"}},
	{ErrKindSSLCertificate, []string{"ssl certificate", "certificate verify failed", "certificate verification failed"}},
	{ErrKindSSLHandshake, []string{"ssl handshake", "tls handshake", "ssl connect error"}},
	{ErrKindNetworkUnreachable, []string{"network unreachable"}},
	{ErrKindHostUnreachable, []string{"host unreachable"}},
}

// Classify assigns a network error kind to a transport failure message.
// Matching is case-insensitive. When no pattern matches, cause is inspected
// for lower-level connection errors.
func Classify(message string, cause error) ErrorKind {
	lower := strings.ToLower(message)

	for _, rule := range classifierRules {
		for _, pattern := range rule.patterns {
			if strings.Contains(lower, pattern) {
				return rule.kind
			}
		}
	}

	if cause != nil {
		return classifyCause(cause)
	}

	return ErrKindUnknown
}

// ClassifyError classifies err by its message and its chain.
func ClassifyError(err error) ErrorKind {
	if err == nil {
		return ErrKindUnknown
	}
	return Classify(transportMessage(err), err)
}

// transportMessage returns err's text with any *url.Error layer replaced by
// the error it wraps. The request method and URL never reach the pattern
// table, so a path like /dns/timeout cannot change the kind.
func transportMessage(err error) string {
	msg := err.Error()
	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Err != nil {
		msg = strings.Replace(msg, urlErr.Error(), urlErr.Err.Error(), 1)
	}
	return msg
}

func classifyCause(err error) ErrorKind {
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		if opErr.Timeout() || strings.Contains(strings.ToLower(opErr.Error()), "timeout") {
			return ErrKindConnectionTimeout
		}
		if errors.Is(opErr, syscall.ENETUNREACH) {
			return ErrKindNetworkUnreachable
		}
		if errors.Is(opErr, syscall.EHOSTUNREACH) {
			return ErrKindHostUnreachable
		}
		var dnsErr *net.DNSError
		if errors.As(opErr, &dnsErr) {
			return ErrKindDNSResolution
		}
		return ErrKindConnectionRefused
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrKindDNSResolution
	}

	var (
		unknownAuthority x509.UnknownAuthorityError
		invalidCert      x509.CertificateInvalidError
		hostnameErr      x509.HostnameError
		verifyErr        *tls.CertificateVerificationError
	)
	if errors.As(err, &unknownAuthority) || errors.As(err, &invalidCert) ||
		errors.As(err, &hostnameErr) || errors.As(err, &verifyErr) {
		return ErrKindSSLCertificate
	}

	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return ErrKindSSLHandshake
	}

	switch {
	case errors.Is(err, syscall.ECONNREFUSED):
		return ErrKindConnectionRefused
	case errors.Is(err, syscall.ENETUNREACH):
		return ErrKindNetworkUnreachable
	case errors.Is(err, syscall.EHOSTUNREACH):
		return ErrKindHostUnreachable
	}

	return ErrKindUnknown
}
