// Package ilp serializes rows into the InfluxDB line protocol dialect
// accepted by the database's ingestion endpoints.
//
// A row renders as
//
//	table[,symbol=value...] [column=value[,column=value...]] [timestamp]\n
//
// Integers carry an "i" suffix, strings are double quoted, booleans are "t"
// or "f" and column timestamps carry a "t" (micros) or "n" (nanos) suffix.
// Under ProtocolVersion2 floats are written in a binary form and float
// arrays become available; everything else is identical between versions.
//
// Buffers are not synchronized. The intended pattern is one Buffer per
// goroutine, with flushing serialized through a single Sender.
package ilp
