// Package config provides server configuration and rule-file handling.
//
// ServerConfiguration carries the runtime settings of a server (listen
// address, limits, CORS, the event log) and is checked with Validate, which
// reports every violated constraint at once.
//
// Rule files hold the mock rules. They are JSON or YAML (by extension) and
// contain either a top-level array of rules or an object with a "mocks" array:
//
//	[
//	  {
//	    "id": "get-user",
//	    "name": "Get user",
//	    "matcher": {"method": "GET", "path": "/users/:id"},
//	    "response": {"status": 200, "body": "{\"id\": \"{{ path }}\"}"}
//	  }
//	]
//
// LoadRules accepts a single path or a glob such as "rules/**/*.yaml"; matches
// are loaded in sorted order. Every document is validated against the
// embedded JSON Schema (RulesSchema) and the combined set with
// mock.ValidateSet. SaveRules writes a rule set back atomically.
package config
