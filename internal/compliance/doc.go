// Package compliance keeps the legal-entity registry and renders ISO 20022
// pacs.008 payment advices for confirmed transfers.
package compliance
