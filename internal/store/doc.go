// Package store keeps the partial output of streaming sessions so an interrupted
// generation can be resumed later.
//
// A session is written once when a stream starts and is then only ever extended:
// Append adds text to the end, SetModel records which upstream model won. Nothing
// rewrites accumulated text. Sessions that have not been touched for longer than
// the retention window are treated as unknown by Get, whether or not the sweep has
// physically removed them yet.
//
// Two implementations are provided. Memory is process-local and loses its state on
// restart; Redis keeps sessions in a redis server with key expiry doing the sweep.
// Deployments running several gateway instances have independent memory stores.
package store
