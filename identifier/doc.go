// Package identifier mints and parses the structured identifiers used to
// correlate every resource handled by the runtime (threads, runs, requests,
// connections, audit records). All minting for a given kind flows through one
// Generator instance so that identifiers stay collision free and a child
// identifier can be traced back to its parent purely by inspection.
//
// Grammar:
//
//	{kind}_{tag}_{timestampMillis}_{counter}_{random8}[.{parent}]
//
// Two correlation schemes are recognized:
//   - embedding: the child carries its parent's base identifier after a '.'
//     (a parent's own embedded suffix is never carried along, so embeddings
//     stay one level deep)
//   - arithmetic: the child's counter equals the parent's counter + 1
//
// Both are produced by MintTriplet and both are accepted by Correlate; do not
// assume one implies the other for identifiers minted elsewhere.
package identifier
