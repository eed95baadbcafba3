// Package leadership defines the shared domain model of the leadership
// discovery engine: candidates, categories, results, fetch state, the fetch
// failure taxonomy and the collaborator interfaces wired by internal/app.
package leadership
