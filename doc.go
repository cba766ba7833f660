// Package ordkeymap provides a map whose entries carry, besides their value, a
// mutable order. Entries are looked up by key and the entries holding the
// smallest order can be peeked or removed as a group.
//
// It is meant as a building block for schedulers, caches and expiry engines.
// See the timer and ttl packages for two such uses.
package ordkeymap
