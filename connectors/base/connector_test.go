// Copyright 2025 Lexigate
// SPDX-License-Identifier: Apache-2.0

package base

import "testing"

func TestDialectValid(t *testing.T) {
	for _, d := range []Dialect{DialectMongoDB, DialectMySQL, DialectMSSQL, DialectPostgreSQL} {
		if !d.Valid() {
			t.Errorf("Dialect %q should be valid", d)
		}
	}
	if Dialect("Oracle").Valid() {
		t.Error("unknown dialect should be invalid")
	}
	if Dialect("").Valid() {
		t.Error("empty dialect should be invalid")
	}
}

func TestDescriptorFingerprint(t *testing.T) {
	a := Descriptor{Host: "db1.example.com", Port: 5432, User: "reader", Password: "s3cret", Database: "sales"}
	b := a
	b.Password = "other"

	if a.Fingerprint(DialectPostgreSQL) == b.Fingerprint(DialectPostgreSQL) {
		t.Error("descriptors with different credentials must not share a fingerprint")
	}
	if a.Fingerprint(DialectPostgreSQL) == a.Fingerprint(DialectMySQL) {
		t.Error("same descriptor under different dialects must not share a fingerprint")
	}
	if a.Fingerprint(DialectPostgreSQL) != a.Fingerprint(DialectPostgreSQL) {
		t.Error("fingerprint must be stable")
	}

	for _, fp := range []string{a.Fingerprint(DialectPostgreSQL), b.Fingerprint(DialectPostgreSQL)} {
		if len(fp) != 32 {
			t.Errorf("fingerprint length = %d, want 32 hex chars", len(fp))
		}
	}
}

func TestPortOrDefault(t *testing.T) {
	if got := (Descriptor{}).PortOrDefault(3306); got != 3306 {
		t.Errorf("PortOrDefault = %d, want 3306", got)
	}
	if got := (Descriptor{Port: 13306}).PortOrDefault(3306); got != 13306 {
		t.Errorf("PortOrDefault = %d, want 13306", got)
	}
}
