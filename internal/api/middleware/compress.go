// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"io"
	"net/http"

	"github.com/andybalholm/brotli"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
)

// compressedTypes are the response types worth compressing; job logs and
// series listings are the large ones.
var compressedTypes = []string{"application/json", "text/plain"}

// Compress negotiates zstd, brotli, gzip or deflate for JSON and text
// responses. Encoders added last are preferred.
func Compress(level int) func(http.Handler) http.Handler {
	c := chimiddleware.NewCompressor(level, compressedTypes...)

	c.SetEncoder("br", func(w io.Writer, level int) io.Writer {
		return brotli.NewWriterLevel(w, level)
	})
	c.SetEncoder("zstd", func(w io.Writer, level int) io.Writer {
		enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			log.Error().Err(err).Msg("failed to create zstd encoder")
			return nil
		}
		return enc
	})

	return c.Handler
}
