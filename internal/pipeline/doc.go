// Package pipeline drives compiled jobs end to end. A [Pipeline] is the
// event handler behind both the Kafka listener and the batch command:
// compile the render job, archive the manifest, then either submit the
// graph to the farm or run it on this machine.
//
// Permanent compile failures (a missing sequence, an undetermined frame
// rate, invalid metadata) are logged and counted, never retried. Transport
// failures are returned so the listener leaves the event for redelivery.
package pipeline
