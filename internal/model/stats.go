package model

// QueueStats summarizes one job class: queue depths and event counts by
// status. Dead is the main operational signal.
type QueueStats struct {
	Class  JobClass       `json:"class"`
	Queue  string         `json:"queue"`
	Depth  int            `json:"depth"`
	Dead   int            `json:"dead"`
	Counts map[Status]int `json:"counts"`
}
