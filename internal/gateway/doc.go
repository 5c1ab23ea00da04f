// Package gateway implements the resilience gateway that wraps every
// outbound call to an unreliable external dependency (third-party SaaS
// APIs, AI model providers) in a named circuit breaker, so a degraded
// dependency cannot cascade into application-wide failure.
//
// # Circuit Breaker State Machine
//
// Each named breaker tracks success/failure/timeout outcomes in a rolling
// window and moves between CLOSED, OPEN, and HALF_OPEN. Once the window
// holds at least VolumeThreshold completed calls and the failure rate
// (failures + timeouts) reaches ErrorThresholdPercentage, the breaker
// opens and rejects calls without invoking the action. After ResetTimeout
// a single trial call is admitted; its outcome closes or reopens the
// circuit.
//
//	gw := gateway.New(gateway.Options{Defaults: defaults, Store: store})
//	result, err := gw.Execute(ctx, gateway.ExecuteOptions{Name: "ai-providers"},
//		func(ctx context.Context) (interface{}, error) {
//			return provider.Complete(ctx, prompt)
//		}, nil)
//
// # Distributed State
//
// OPEN transitions are published to a shared key-value store with a TTL,
// and freshly created breakers hydrate from that store asynchronously.
// The store is advisory: if it is unreachable the breaker degrades to
// local-only behavior rather than blocking traffic.
//
// # Governance
//
// TripBreaker and ResetBreaker allow manual operator overrides. Both
// check the circuit-breaker:manage permission before mutating state and
// write an audit record asynchronously afterwards.
//
// All collaborators (state store, permission checker, audit sink, metrics
// sink) are optional; a nil collaborator degrades that feature silently
// and never crashes the gateway.
package gateway
