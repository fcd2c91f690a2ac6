// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package ledger credits votes to candidates.

A Credit names the payment it comes from. Ledger.Credit records the
payment key in vote_credit and increments the candidate in the same
transaction, so each payment is credited at most once no matter how often
it is delivered.

# Dispatch

Credits are applied off the request path by one of two dispatchers:

	queue := ledger.NewQueue(ledger.New(db), ledger.QueueConfig{Workers: 4})
	pub := ledger.NewKafkaPublisher(brokers) // with a KafkaConsumer elsewhere

Queue retries transient failures with backoff and drops credits for
unknown candidates. Close drains what is buffered. The Kafka pair gives
at-least-once delivery across restarts and instances on topic vote.credit.
*/
package ledger
