// Package mock defines the declarative mock rule model served by the dispatch engine.
//
// A Rule pairs a Matcher (method, path template, header, query and body
// patterns) with a Response template (status, templated headers and body,
// artificial delay). Rule sets are ordered: the engine answers with the first
// rule whose matcher holds.
//
// Matcher headers and query parameters are lists of KeyValue entries where an
// empty key means "unset". The body pattern is a Pattern, which is either
// Unset or holds a string.
//
// Request is the engine's normalized view of an inbound request, built once
// per dispatch and shared by matching, templating and logging.
package mock
