// SPDX-License-Identifier: MPL-2.0

// Package digest resolves image content digests from the local engine and from
// the registry. Lookups never fail; anything that cannot be determined is
// Unknown, and Unknown is never equal to another digest.
package digest
