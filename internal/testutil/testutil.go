// Package testutil provides shared test helpers. Redis-backed components are
// tested against miniredis, which needs no external services.
package testutil
