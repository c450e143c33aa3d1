// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package store

// StorageConfig controls which backend the store factory uses.
type StorageConfig struct {
	Backend          string // "sqlite" or "neo4j"; empty means "sqlite".
	VectorDimensions int    // Embedding dimensions; 0 uses the default (1536).
	Neo4j            Neo4jConfig
}

// Neo4jConfig holds connection settings for the neo4j backend.
type Neo4jConfig struct {
	URI      string
	User     string
	Password string
	Database string
}
