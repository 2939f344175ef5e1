//go:build e2e

// Package e2e runs loopback scenarios against a real Chrome.
//
// The suite is behind the e2e build tag:
//
//	go test -tags=e2e ./e2e/...
//
// Rod downloads Chromium when no browser is installed. Every test builds
// its own media backend, serves the harness page from a loopback-server
// on an ephemeral port and launches its own browser, so tests do not
// share state.
//
// The audio scenario also needs a pesq binary on PATH and a 16 kHz mono
// reference WAV named by LOOPBACK_AUDIO_REF; it is skipped otherwise.
package e2e
