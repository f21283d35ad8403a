// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package mdf

import "errors"

// Sentinel errors for container-level and group-level failures. Container
// errors abort the whole conversion of a file; ErrMalformedChannelGroup is
// scoped to one channel group and siblings continue.
var (
	ErrCorruptContainer       = errors.New("mdf: corrupt container")
	ErrUnsupportedVersion     = errors.New("mdf: unsupported MDF version")
	ErrUnsupportedCompression = errors.New("mdf: unsupported compression")
	ErrMissingDecryptionKey   = errors.New("mdf: missing decryption key")
	ErrMalformedChannelGroup  = errors.New("mdf: malformed channel group")
)
