// Package storage provides the durable key-value adapters machine state is
// synchronized to: an in-memory adapter and a filesystem adapter, both with
// lazy TTL expiry and optional reversible payload obfuscation.
package storage
