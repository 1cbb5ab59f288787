// Package integrity signs and verifies the per-aggregate event chain.
//
// Each stored event carries a content hash, a chain hash linking it to the
// previous event of the same aggregate, and an HMAC signature of the chain
// hash under a key derived per aggregate. Rewriting history therefore
// breaks either a hash link or a signature.
package integrity
