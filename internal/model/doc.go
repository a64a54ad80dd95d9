// Package model holds the value types exchanged between the allocator,
// generator, batch coordinator and push gateway.
package model
