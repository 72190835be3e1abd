// Package domain holds the pipeline specification model and the runtime
// types shared by the orchestrator, the adapters and the API layers.
//
// The specification types follow the pipeline IR layout (camelCase keys) so
// that compiled pipeline files can be decoded directly. Every "one of"
// descriptor in the IR (input sources, component implementations, executor
// kinds, output selectors) is exposed as a sealed interface whose concrete
// variants are matched with a type switch.
package domain
