package util

const ApplicationName = `opendata`
const ApplicationSummary = `an ingestion server for open scientific datasets`
const ApplicationVersion = `0.1.0`

type Status struct {
	OK          bool   `json:"ok"`
	Application string `json:"application"`
	Version     string `json:"version"`
	Backend     string `json:"backend,omitempty"`
	Source      string `json:"source,omitempty"`
}
