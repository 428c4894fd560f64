// Package testing runs an in-process mocklane server for Go tests.
//
// Create a server, register mocks with the fluent builder, and point the
// code under test at its URL:
//
//	func TestClient(t *testing.T) {
//	    srv := mltest.New(t)
//	    srv.Mock("GET", "/users/:id").
//	        WithStatus(200).
//	        WithBody(`{"id": "{{path}}"}`).
//	        Reply()
//
//	    client := NewClient(srv.Start())
//	    ...
//	    srv.AssertCalled(t, "GET", "/users/:id")
//	}
//
// Mocks are ordinary rules, so paths, header and query patterns, and
// response templates behave exactly as in rule files. Mocks added after
// Start are published immediately; Times(n) removes a mock after n matches.
//
// Every request is recorded; Requests and LastRequest expose them for
// assertions on headers, query parameters and JSON bodies:
//
//	req := srv.LastRequest()
//	req.AssertHeader(t, "Authorization", "Bearer token")
//	req.AssertJSONPath(t, "$.user.name", "ada")
//
// The server is stopped automatically when the test ends.
package testing
