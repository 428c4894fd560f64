package admin

// HealthResponse is the body of GET /__health.
type HealthResponse struct {
	OK            bool   `json:"ok"`
	Port          int    `json:"port"`
	ConfigPath    string `json:"configPath"`
	HasConfigFile bool   `json:"hasConfigFile"`
	MocksCount    int    `json:"mocksCount"`
	UptimeSeconds int    `json:"uptimeSeconds"`
	Subscribers   int    `json:"subscribers"`
}

// ReplaceResponse is the body of a successful PUT /__mocks.
type ReplaceResponse struct {
	OK        bool `json:"ok"`
	Count     int  `json:"count"`
	Persisted bool `json:"persisted"`
}

// ReloadResponse is the body of POST /__reload. Warning carries the load
// error when the rule source could not be read.
type ReloadResponse struct {
	OK      bool   `json:"ok"`
	Count   int    `json:"count"`
	Warning string `json:"warning,omitempty"`
}
