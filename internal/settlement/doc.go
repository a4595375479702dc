// Package settlement publishes ISO 20022 payment advices for confirmed
// transfers to an in-memory, Redis or RabbitMQ sink.
package settlement
