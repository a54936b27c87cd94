// Copyright 2026 The adi-cli Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package wireframe is the length-prefixed binary frame codec shared by
// the daemon server and client: four little-endian bytes giving the
// payload length, followed by the payload.
//
// The payload itself is encoded with github.com/fxamacker/cbor/v2, whose
// RawMessage type lets a tagged union's variant tag be decoded without
// first copying out every field.
package wireframe

import (
	"encoding/binary"
	"io"

	"github.com/fxamacker/cbor/v2"
	"github.com/pkg/errors"

	"github.com/adi-family/adi-cli/pkg/adierrors"
)

// MaxFrameSize bounds a single frame's payload to guard against a
// corrupted or hostile length prefix causing an unbounded allocation.
const MaxFrameSize = 64 * 1024 * 1024

// Encode writes length-prefixed envelope(v) to w. v is expected to be one
// of the tagged-union Envelope values from pkg/ipc. The payload is fully
// marshaled in memory before any bytes reach w, so an encoding failure
// never leaves a truncated frame on the stream.
func Encode(w io.Writer, v interface{}) error {
	payload, err := cbor.Marshal(v)
	if err != nil {
		return adierrors.New(adierrors.Programmer, err, "failed to encode frame payload")
	}
	if len(payload) > MaxFrameSize {
		return adierrors.New(adierrors.Programmer, nil, "frame payload of %d bytes exceeds maximum of %d", len(payload), MaxFrameSize)
	}

	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))

	full := make([]byte, 0, 4+len(payload))
	full = append(full, lenBuf[:]...)
	full = append(full, payload...)

	if _, err := w.Write(full); err != nil {
		return errors.Wrap(err, "failed to write frame")
	}
	return nil
}

// Decode reads one length-prefixed frame from r and unmarshals its payload
// into v (a pointer to an Envelope-shaped value).
func Decode(r io.Reader, v interface{}) error {
	payload, err := ReadPayload(r)
	if err != nil {
		return err
	}
	if err := cbor.Unmarshal(payload, v); err != nil {
		return adierrors.New(adierrors.Programmer, err, "failed to decode frame payload")
	}
	return nil
}

// ReadPayload reads one length-prefixed frame from r and returns its raw
// payload bytes, without decoding. Decode is built on it.
func ReadPayload(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, errors.Wrap(err, "failed to read frame length prefix")
	}
	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return nil, adierrors.New(adierrors.Programmer, nil, "frame length %d exceeds maximum of %d", n, MaxFrameSize)
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, errors.Wrap(err, "failed to read frame payload")
	}
	return payload, nil
}
