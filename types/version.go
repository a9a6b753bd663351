package types

// Version is the canonical project version.
// The wire protocol, both process entrypoints, and the capture file
// format share this version per the lockstep versioning policy.
const Version = "0.3.0"
