package model

// Route is the branch a question takes through the pipeline.
type Route string

const (
	RouteRAG    Route = "rag"    // documents only
	RouteSQL    Route = "sql"    // database only
	RouteHybrid Route = "hybrid" // documents parameterize the query
)

// Valid reports whether r is one of the three known routes.
func (r Route) Valid() bool {
	switch r {
	case RouteRAG, RouteSQL, RouteHybrid:
		return true
	}
	return false
}

// NeedsRetrieval reports whether the route requires document passages.
func (r Route) NeedsRetrieval() bool {
	return r == RouteRAG || r == RouteHybrid
}

// NeedsSQL reports whether the route requires query generation.
func (r Route) NeedsSQL() bool {
	return r == RouteSQL || r == RouteHybrid
}

// RouteDecision is the router's output for one question. Produced once,
// never mutated.
type RouteDecision struct {
	Route      Route  `json:"route"`
	Rationale  string `json:"rationale"`
	FromOracle bool   `json:"from_oracle"`
}
