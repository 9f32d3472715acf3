// Package policy holds the run guard settings applied on top of a workflow
// execution: iteration caps, cycle detection window, default step timeout
// and retry, and optional executor allow/block lists. A nil *Policy means
// "defaults everywhere" and is the zero-cost option.
package policy
