// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package sigverify verifies artifact signatures: a manifest's
// platforms[...].signature field is a base64 ed25519 signature over the
// raw artifact bytes, checked against a base64 public key supplied by
// the registry and optionally pinned locally.
package sigverify

import (
	"crypto/ed25519"
	"encoding/base64"

	"github.com/adi-family/adi-cli/pkg/adierrors"
)

// VerifyArtifact checks signatureB64 (standard base64) as a valid
// ed25519 signature over data, produced by the private key matching
// publicKeyB64 (standard base64, 32 raw bytes).
func VerifyArtifact(data []byte, signatureB64, publicKeyB64 string) error {
	sig, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil {
		return adierrors.New(adierrors.Integrity, err, "malformed artifact signature")
	}
	pub, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil {
		return adierrors.New(adierrors.Integrity, err, "malformed artifact public key")
	}
	if len(pub) != ed25519.PublicKeySize {
		return adierrors.New(adierrors.Integrity, nil, "public key has unexpected length %d", len(pub))
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), data, sig) {
		return adierrors.New(adierrors.Integrity, nil, "artifact signature verification failed")
	}
	return nil
}

// TrustedKeys is a locally configured set of plugin_id -> pinned public
// key. A registry-supplied public key is only honored if it matches the
// pin for plugins that have one; plugins with no pin trust the
// registry-supplied key outright (first-use trust).
type TrustedKeys map[string]string

// Pin returns the pinned public key for pluginID and whether one exists.
func (tk TrustedKeys) Pin(pluginID string) (string, bool) {
	k, ok := tk[pluginID]
	return k, ok
}

// ResolvePublicKey chooses the public key to verify pluginID's artifact
// against: the local pin if one exists, else the registry-supplied key.
// Returns an Integrity error if both a pin and a registry key exist but
// disagree.
func (tk TrustedKeys) ResolvePublicKey(pluginID, registryKeyB64 string) (string, error) {
	pinned, ok := tk.Pin(pluginID)
	if !ok {
		return registryKeyB64, nil
	}
	if registryKeyB64 != "" && registryKeyB64 != pinned {
		return "", adierrors.New(adierrors.Integrity, nil, "registry public key for %q does not match the locally pinned key", pluginID)
	}
	return pinned, nil
}
