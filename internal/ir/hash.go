package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Domain prefixes for fingerprints. The version suffix allows the
// algorithm to change without colliding with older values.
const (
	DomainStatement = "nestql/statement/v1"
	DomainRequest   = "nestql/request/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// StatementFingerprint identifies a rendered statement together with its
// bound arguments. Two compiles of the same request on the same dialect
// produce the same fingerprint.
func StatementFingerprint(dialect, sql string, args []any) (string, error) {
	vals := make(IRArray, len(args))
	for i, a := range args {
		v, err := FromAny(a)
		if err != nil {
			return "", fmt.Errorf("StatementFingerprint: arg %d: %w", i, err)
		}
		vals[i] = v
	}
	canonical, err := MarshalCanonical(IRObject{
		"dialect": IRString(dialect),
		"sql":     IRString(sql),
		"args":    vals,
	})
	if err != nil {
		return "", fmt.Errorf("StatementFingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainStatement, canonical), nil
}

// RequestFingerprint hashes a request document already reduced to an
// IRObject, for log correlation across dialects.
func RequestFingerprint(doc IRObject) (string, error) {
	canonical, err := MarshalCanonical(doc)
	if err != nil {
		return "", fmt.Errorf("RequestFingerprint: failed to marshal: %w", err)
	}
	return hashWithDomain(DomainRequest, canonical), nil
}

// MustStatementFingerprint is like StatementFingerprint but panics on error.
// Use only in tests or when inputs are known to be valid.
func MustStatementFingerprint(dialect, sql string, args []any) string {
	fp, err := StatementFingerprint(dialect, sql, args)
	if err != nil {
		panic(err)
	}
	return fp
}
