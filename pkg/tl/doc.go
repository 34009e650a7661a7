/*
Package tl contains the types used to talk to a tonlib-compatible node daemon.

Every request is a Function, every reply is a Result. Both are serialized as JSON
objects with a "@type" discriminator and may carry an opaque "@extra" string that
the daemon echoes back unchanged, which is how replies are matched to requests.
The schema itself is fixed by the daemon, types here only mirror the subset this
library uses.
*/
package tl
