// Package model defines the declarative workflow definition consumed by the
// engine: the Workflow document, the closed four-shape Step union
// (Standard/Parallel/Loop/Terminal), conditions and retry strategies.
// Definitions are validated entirely at load time and are immutable once
// loaded.
package model
