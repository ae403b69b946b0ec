// Package connector contains the Connector bounded context.
// It owns the synchronization of catalogs and orders pulled from external
// e-commerce platforms into the internal staging area.
//
// Key concepts:
//   - Connector: a configured link to one external platform instance
//   - Credential: encrypted API key/secret pair scoped to a connector
//   - SyncConfig: per-connector entity flags and custom mapping rule sets
//   - SyncRun: one execution of the pipeline with lifecycle and statistics
//   - ExternalRecord: the staged outcome of mapping one external item
//   - MappingRule: declarative source→target field instruction with an optional transform
//
// Design Pattern: Ports & Adapters
//   - Ports (ExternalClient, ClientFactory, Encrypter, repositories) are defined here
//   - Adapters (WooCommerce client, GORM repositories, AES encrypter) live in infrastructure
package connector
