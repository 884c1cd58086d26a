// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Cassium Contributors

package bot

import (
	"strings"

	"github.com/samber/oops"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// CodeUnknownEncoding is returned for encoding labels htmlindex does not know.
const CodeUnknownEncoding = "UNKNOWN_ENCODING"

// LookupEncoding resolves a WHATWG encoding label such as "utf-8",
// "latin1" or "windows-1252".
func LookupEncoding(label string) (encoding.Encoding, error) {
	enc, err := htmlindex.Get(strings.TrimSpace(label))
	if err != nil {
		return nil, oops.In("bot").Code(CodeUnknownEncoding).With("encoding", label).
			Hint("use a WHATWG label such as utf-8 or iso-8859-1").
			Wrapf(err, "unknown encoding %q", label)
	}
	return enc, nil
}
